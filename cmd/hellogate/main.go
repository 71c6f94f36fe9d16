package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// .env opcional; el entorno real siempre gana
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "hellogate",
		Short:         "Gate de captcha + broker de federación OAuth2",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), hashPasswordCmd(), captchaPreviewCmd(), encryptSecretCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
