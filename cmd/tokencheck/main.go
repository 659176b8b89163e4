// Command tokencheck verifies that the configured realtime credentials can issue channel tokens.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/CzarSimon/httputil/environ"
	"github.com/CzarSimon/httputil/logger"
	"github.com/rtcheap/session-broker/internal/models"
	"github.com/rtcheap/session-broker/internal/rtctoken"
	"github.com/rtcheap/session-broker/internal/service"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

var log = logger.GetDefaultLogger("session-broker/tokencheck")

type options struct {
	appID          string
	appCertificate string
	channel        string
	role           string
	ttl            time.Duration
}

func (o *options) addFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.appID, "app-id", environ.Get("AGORA_APP_ID", ""), "Realtime app id")
	fs.StringVar(&o.appCertificate, "app-certificate", environ.Get("AGORA_APP_CERTIFICATE", ""), "Realtime app certificate")
	fs.StringVarP(&o.channel, "channel", "c", "test-channel", "Channel to issue the token for")
	fs.StringVarP(&o.role, "role", "r", models.RoleHost, "Role of the token, host or viewer")
	fs.DurationVar(&o.ttl, "ttl", service.DefaultTokenTTL, "Validity of the token")
}

func main() {
	var opts options
	opts.addFlags(pflag.CommandLine)
	pflag.Parse()

	err := run(opts)
	if err != nil {
		log.Error("token check failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(opts options) error {
	fmt.Printf("App ID:      %s\n", presence(opts.appID))
	fmt.Printf("Certificate: %s\n", presence(opts.appCertificate))

	issuer := service.TokenService{
		AppID:          opts.appID,
		AppCertificate: opts.appCertificate,
		TTL:            opts.ttl,
	}

	token, err := issuer.Issue(context.Background(), opts.channel, opts.role)
	if err != nil {
		return err
	}

	claims, err := rtctoken.Parse(token.Token, opts.appCertificate, opts.channel, token.UID)
	if err != nil {
		return fmt.Errorf("issued token does not verify. %w", err)
	}

	fmt.Printf("Token length: %d\n", len(token.Token))
	fmt.Printf("First 50 chars: %s...\n", prefix(token.Token, 50))
	fmt.Printf("Can publish: %t\n", claims.CanPublish())
	fmt.Printf("Expires at: %s\n", time.Unix(token.ExpiresAt, 0).UTC().Format(time.RFC3339))
	return nil
}

func presence(value string) string {
	if value == "" {
		return "missing"
	}

	return "found"
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n]
}
