package logger

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey struct{}

// ToContext guarda el logger del request en el contexto. Lo hace el
// middleware de logging; el resto del código sólo lee con From.
func ToContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From devuelve el logger del contexto, con los campos del request ya
// cargados. Fuera de un request (workers, comandos cobra) cae al singleton,
// así que es seguro llamarlo desde cualquier lado.
func From(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
			return l
		}
	}
	return L()
}
