package password

import "golang.org/x/crypto/bcrypt"

// Cost por defecto. Subirlo reprocesa los hashes en el próximo login exitoso.
const DefaultCost = 12

// Hash genera el hash bcrypt del password.
func Hash(pwd string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pwd), DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify compara password contra hash. hash nil ⇒ false (cuenta sin password).
func Verify(hash *string, pwd string) bool {
	if hash == nil || *hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(*hash), []byte(pwd)) == nil
}
