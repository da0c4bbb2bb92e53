package auth

import "errors"

var (
	// ErrNoSession - нет сохраненной пары токенов
	ErrNoSession = errors.New("no active session")

	// ErrRefreshRejected - сервер отклонил refresh token или его нет;
	// сессия завершена и credential удален
	ErrRefreshRejected = errors.New("refresh token rejected")

	// ErrRefreshFailed - временный сбой обновления (сеть, 5xx);
	// credential сохранен, следующий 401 попробует снова
	ErrRefreshFailed = errors.New("token refresh failed")

	// ErrAuthenticationFailed - не удалось подтвердить новую сессию (профиль не загрузился)
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrStoreLocked - credential на диске зашифрован, а passphrase не задан
	ErrStoreLocked = errors.New("stored credential is sealed, set JIUCOM_TOKEN_PASSPHRASE")
)
