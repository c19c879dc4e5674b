package auth

import "golang.org/x/crypto/bcrypt"

// HashPassword はパスワードのbcryptハッシュを生成する。
// 平文パスワードは保存してはならない。
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CheckPassword は平文パスワードとbcryptハッシュを比較する。
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
