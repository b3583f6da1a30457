// Package testutil contains fixtures shared by tests: a small bank with one
// tenant, two users, their accounts, transactions and offers, plus helpers to
// load them into any banking.Store. Not intended for production usage.
package testutil
