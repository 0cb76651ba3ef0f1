package adapter

import (
	"errors"
	"fmt"
)

var ErrConversion = errors.New("conversion failed")

// ConversionError reports a converter that blew up on an unexpected shape.
type ConversionError struct {
	Direction string
	ID        string
	Cause     any
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("%s %s: conversion failed: %v", e.Direction, e.ID, e.Cause)
}

func (e *ConversionError) Is(target error) bool {
	return target == ErrConversion
}

// Safely runs fn and turns a panic into a *ConversionError, so a bad tree can
// never take down the caller.
func Safely[T any](direction, id string, fn func() T) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			out = zero
			err = &ConversionError{Direction: direction, ID: id, Cause: r}
		}
	}()
	return fn(), nil
}
