package db

import "time"

// User はusersテーブルの行。
type User struct {
	ID        string
	Email     string
	Role      string
	FullName  string
	CreatedAt time.Time
}
