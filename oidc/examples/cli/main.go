// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/hashicorp/hseauth/oidc"
	"github.com/hashicorp/hseauth/oidc/session"
)

func main() {
	refreshToken := flag.String("refresh", "", "refresh tokens using this refresh_token instead of signing in")
	logout := flag.Bool("logout", false, "sign out instead of signing in")
	flag.Parse()

	if *logout && *refreshToken != "" {
		fmt.Fprint(os.Stderr, "you can't request both: -logout and -refresh\n")
		os.Exit(2)
	}

	cfg, err := loadConfig(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n\n", err)
		os.Exit(1)
	}
	if err := run(cfg, *refreshToken, *logout); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		if errors.Is(err, oidc.ErrSessionCancelled) {
			fmt.Fprint(os.Stderr, "Cancelled\n")
		}
		os.Exit(1)
	}
}

func run(cfg *cliConfig, refreshToken string, logout bool) error {
	logger := cfg.logger()
	c, err := cfg.oidcConfig(logger)
	if err != nil {
		return err
	}
	browser := session.NewBrowser(session.WithLogger(logger))
	defer browser.Close()
	f, err := oidc.NewFlow(c, browser, oidc.WithLogger(logger))
	if err != nil {
		return err
	}

	// handle ctrl-c while waiting on the user
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	switch {
	case logout:
		redirect, err := f.Logout(ctx, "")
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Signed out (redirected to %s)\n", redirect)
		return nil

	case refreshToken != "":
		t, err := f.Refresh(ctx, oidc.RefreshToken(refreshToken))
		if err != nil {
			return err
		}
		printToken(t)
		return nil

	default:
		t, err := f.Authenticate(ctx)
		if err != nil {
			return err
		}
		printToken(t)
		if t.IdToken != "" {
			if err := f.VerifyIdToken(ctx, t.IdToken); err != nil {
				fmt.Fprintf(os.Stderr, "IdToken: %s\n", err)
			}
			printClaims(t.IdToken)
		}
		return nil
	}
}

type respToken struct {
	IdToken      string
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	Expiry       time.Time
}

func printClaims(t oidc.IdToken) {
	const op = "printClaims"
	var tokenClaims map[string]interface{}
	if err := t.Claims(&tokenClaims); err != nil {
		fmt.Fprintf(os.Stderr, "IdToken claims: error parsing: %s\n", err)
		return
	}
	idData, err := json.MarshalIndent(tokenClaims, "", "    ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", op, err)
		return
	}
	fmt.Fprintf(os.Stderr, "IdToken claims:%s\n", idData)
}

func printToken(t *oidc.Token) {
	const op = "printToken"
	tokenData, err := json.MarshalIndent(printableToken(t), "", "    ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", op, err)
		return
	}
	fmt.Fprintf(os.Stdout, "%s\n", tokenData)
}

// printableToken is needed because the oidc.Token redacts the IdToken,
// AccessToken and RefreshToken
func printableToken(t *oidc.Token) respToken {
	return respToken{
		IdToken:      string(t.IdToken),
		AccessToken:  string(t.AccessToken),
		RefreshToken: string(t.RefreshToken),
		TokenType:    t.TokenType,
		Scope:        t.Scope,
		Expiry:       t.Expiry,
	}
}
