package service

import (
	"errors"

	errorsmod "cosmossdk.io/errors"

	"cpamm/internal/amm"
)

// Codespace is the registration namespace of host errors.
const Codespace = "service"

var (
	ErrPoolNotFound = errorsmod.Register(Codespace, 1, "pool not found")
	ErrPoolExists   = errorsmod.Register(Codespace, 2, "pool already exists")
)

// KindOf returns the registered kind carried by err, checking host kinds
// before pool kinds.
func KindOf(err error) *errorsmod.Error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrPoolNotFound):
		return ErrPoolNotFound
	case errors.Is(err, ErrPoolExists):
		return ErrPoolExists
	}
	return amm.KindOf(err)
}
