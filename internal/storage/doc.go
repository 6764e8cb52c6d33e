// Package storage provides the durable blob backends for the reminder store.
//
// The reminder store serializes its whole state into one blob and hands it to
// a backend on every mutation. Every backend replaces the previous blob
// atomically, so a crash never leaves a half-written state readable.
package storage
