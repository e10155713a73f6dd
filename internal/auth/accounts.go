package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/narendersurabhi/microservices-ml-platform/pkg/middleware"
)

// ErrInvalidLogin はユーザー名またはパスワードが一致しないことを示す。
var ErrInvalidLogin = errors.New("invalid username or password")

// Account はログイン可能なアカウント。
type Account struct {
	// Username はログインに使用するメールアドレス。
	Username string
	// Role はトークンに含めるロール。
	Role middleware.Role
	passwordHash []byte
}

// DemoAccounts はデモ用アカウントのユーザー名・パスワード・ロール。
var DemoAccounts = []struct {
	Username string
	Password string
	Role     middleware.Role
}{
	{Username: "admin@example.com", Password: "admin123", Role: middleware.RoleAdmin},
	{Username: "analyst@example.com", Password: "analyst123", Role: middleware.RoleAnalyst},
	{Username: "viewer@example.com", Password: "viewer123", Role: middleware.RoleViewer},
}

// Directory はユーザー名からアカウントを引く。パスワードはbcryptのハッシュで保持する。
type Directory struct {
	accounts map[string]Account
	// dummyHash は存在しないユーザーでも照合時間を揃えるためのハッシュ。
	dummyHash []byte
}

// NewDemoDirectory はデモ用アカウントを登録したDirectoryを生成する。
func NewDemoDirectory(cost int) (*Directory, error) {
	d := &Directory{accounts: make(map[string]Account, len(DemoAccounts))}
	for _, a := range DemoAccounts {
		hash, err := bcrypt.GenerateFromPassword([]byte(a.Password), cost)
		if err != nil {
			return nil, fmt.Errorf("パスワードのハッシュ化に失敗: %w", err)
		}
		d.accounts[a.Username] = Account{Username: a.Username, Role: a.Role, passwordHash: hash}
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("dummy-password"), cost)
	if err != nil {
		return nil, fmt.Errorf("パスワードのハッシュ化に失敗: %w", err)
	}
	d.dummyHash = dummy
	return d, nil
}

// Authenticate はユーザー名とパスワードを検証し、一致したアカウントを返す。
func (d *Directory) Authenticate(username, password string) (Account, error) {
	account, ok := d.accounts[username]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(d.dummyHash, []byte(password))
		return Account{}, ErrInvalidLogin
	}
	if err := bcrypt.CompareHashAndPassword(account.passwordHash, []byte(password)); err != nil {
		return Account{}, ErrInvalidLogin
	}
	return account, nil
}
