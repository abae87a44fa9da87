package models

// User представляет оператора админки CRM.
type User struct {
	UUID         string // Идентификатор, присваивается хранилищем
	Email        string // Email оператора
	Username     string // Логин
	PasswordHash string // bcrypt-хэш пароля
	Role         string // Роль ("admin" или "operator")
}
