package ports

import "github.com/bnema/imsim/internal/domain"

type Observer interface {
	Notify(sessions []domain.SessionStatus)
}

type ObserverFunc func(sessions []domain.SessionStatus)

func (f ObserverFunc) Notify(sessions []domain.SessionStatus) {
	f(sessions)
}
