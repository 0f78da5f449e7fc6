package services

import "time"

func (a *AuthService) SetClock(now func() time.Time) { a.now = now }

func (s *EventSweeper) SetClock(now func() time.Time) { s.now = now }
