// errors.go — ошибки бизнес-логики сервисного слоя.
// Транспорт сопоставляет их с HTTP-статусами через errors.Is.
package service

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrUnsupportedMedia — MIME-тип не входит в список разрешённых.
	ErrUnsupportedMedia = fmt.Errorf("%w: недопустимый тип файла", ErrValidation)
	// ErrEntityTooLarge — файл превышает лимит размера.
	ErrEntityTooLarge = fmt.Errorf("%w: превышен максимальный размер файла", ErrValidation)
	// ErrConflict — конфликт уникальности (ключ хранения, email).
	ErrConflict = errors.New("конфликт: ресурс уже существует")
	// ErrNotFound — ресурс не найден, не принадлежит вызывающему
	// или находится в неподходящем состоянии.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrGone — запись есть, но файл отсутствует на диске.
	ErrGone = errors.New("файл отсутствует в хранилище")
	// ErrIO — ошибка ввода-вывода хранилища.
	ErrIO = errors.New("ошибка хранилища")
	// ErrUnauthorized — неверные учётные данные.
	ErrUnauthorized = errors.New("неверный email или пароль")
	// ErrLocalAuthDisabled — регистрация и вход отключены, токены выдаёт внешний IdP.
	ErrLocalAuthDisabled = errors.New("локальная аутентификация отключена")
)
