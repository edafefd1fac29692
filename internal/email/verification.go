package email

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dropDatabas3/portero/internal/cache"
	"github.com/dropDatabas3/portero/internal/observability/logger"
	tokens "github.com/dropDatabas3/portero/internal/security/token"
	"github.com/dropDatabas3/portero/internal/tasks"
)

// TaskSendVerification es el tipo de task del mail de verificación.
const TaskSendVerification = "email.send_verification"

// VerificationTTL es la vida útil del link de verificación.
const VerificationTTL = 24 * time.Hour

type verificationPayload struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// EnqueueVerification encola el envío del mail de verificación. El registro
// no espera al SMTP: si el envío falla, el retry es de la task.
func EnqueueVerification(ctx context.Context, q tasks.Queue, userID, email string) error {
	t, err := tasks.NewTask(TaskSendVerification, verificationPayload{UserID: userID, Email: email})
	if err != nil {
		return err
	}
	return q.Enqueue(ctx, t)
}

// VerificationKey arma la key de cache para un token de verificación.
// El token crudo viaja en el mail; en cache sólo vive su hash.
func VerificationKey(token string) string {
	return "everify:" + tokens.SHA256Base64URL(token)
}

// VerificationHandler retorna el handler de worker: genera el token,
// lo deja en cache apuntando al user y envía el link por mail.
func VerificationHandler(sender Sender, c cache.Client, publicBaseURL string) tasks.Handler {
	return func(ctx context.Context, t tasks.Task) error {
		var p verificationPayload
		if err := json.Unmarshal(t.Payload, &p); err != nil {
			// Payload irrecuperable: no reintentar.
			return nil
		}
		if p.UserID == "" || p.Email == "" {
			return nil
		}

		tok, err := tokens.GenerateOpaqueToken(32)
		if err != nil {
			return err
		}
		if err := c.Set(ctx, VerificationKey(tok), p.UserID, VerificationTTL); err != nil {
			return err
		}

		link := fmt.Sprintf("%s/v1/auth/verify-email?token=%s", publicBaseURL, tok)
		html := fmt.Sprintf(
			`<p>Confirmá tu dirección de email haciendo click en el siguiente enlace:</p><p><a href=%q>Verificar email</a></p>`,
			link)
		text := "Confirmá tu dirección de email: " + link

		if err := sender.Send(p.Email, "Verificá tu email", html, text); err != nil {
			return err
		}
		logger.Named("email").Info("mail de verificación enviado", logger.UserID(p.UserID))
		return nil
	}
}
