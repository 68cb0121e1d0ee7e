package main

import (
	"context"
	"os"

	"golang.org/x/term"

	"github.com/r2d2/r2d2/internal/adapter"
	"github.com/r2d2/r2d2/internal/bridge"
	"github.com/r2d2/r2d2/internal/cli/prompt"
	"github.com/r2d2/r2d2/internal/config"
	"github.com/r2d2/r2d2/internal/progress"
	"github.com/r2d2/r2d2/internal/repository"
)

// minPasswordLength applies to passwords chosen interactively
const minPasswordLength = 8

// repoBackend wires the configured store into the repository backend contract.
// Listings show a spinner on bars. The returned close function tears the
// bridge and the store down.
func repoBackend(ctx context.Context, cfg *config.Config, bars *progress.Bars) (*adapter.R2Backend, func(), error) {
	timeout, err := cfg.CallTimeoutDuration()
	if err != nil {
		return nil, nil, err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	br := bridge.New(ctx, bridge.WithTimeout(timeout))
	be := adapter.New(store, br, adapter.WithProgress(bars))

	closeFn := func() {
		_ = br.Close()
		_ = store.Close()
	}
	return be, closeFn, nil
}

// openRepository opens the configured repository, asking for its password.
func openRepository(ctx context.Context, cfg *config.Config, bars *progress.Bars) (*repository.Repository, func(), error) {
	be, closeBackend, err := repoBackend(ctx, cfg, bars)
	if err != nil {
		return nil, nil, err
	}

	password, err := prompt.ReadPassword("Repository password")
	if err != nil {
		closeBackend()
		return nil, nil, err
	}

	repo, err := repository.Open(be, password)
	if err != nil {
		closeBackend()
		return nil, nil, err
	}

	closeFn := func() {
		_ = repo.Close()
		closeBackend()
	}
	return repo, closeFn, nil
}

// newPassword asks for a new password with confirmation on a terminal, and
// falls back to R2D2_PASSWORD or piped stdin otherwise.
func newPassword() (string, error) {
	if _, ok := os.LookupEnv(prompt.PasswordEnv); ok || !term.IsTerminal(int(os.Stdin.Fd())) {
		return prompt.ReadPassword("Password")
	}
	return prompt.NewPassword(minPasswordLength)
}
