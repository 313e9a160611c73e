package main

import (
	"fmt"
	"os"
	"time"

	"github.com/tomyedwab/libsqlgo/auth"
)

type cmdToken struct {
	SecretFile string        `long:"jwt-secret-file" required:"yes" description:"Key file shared with the server"`
	Subject    string        `long:"subject" default:"libsql" description:"Token subject"`
	Namespace  string        `long:"namespace" description:"Restrict the token to one namespace"`
	ReadOnly   bool          `long:"read-only" description:"Forbid writes"`
	TTL        time.Duration `long:"ttl" default:"24h" description:"Token lifetime; 0 never expires"`
}

func (cmd *cmdToken) Execute([]string) error {
	setupLogger()

	secret, err := auth.LoadSecretKey(cmd.SecretFile)
	if err != nil {
		return err
	}
	access := auth.AccessFull
	if cmd.ReadOnly {
		access = auth.AccessReadOnly
	}
	token, err := auth.Issue(secret, cmd.Subject, cmd.Namespace, access, cmd.TTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, token)
	return nil
}
