package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/hellogate/internal/captcha"
	"github.com/dropDatabas3/hellogate/internal/security/password"
	"github.com/dropDatabas3/hellogate/internal/security/secretbox"
)

// hash-password: genera el hash para accounts[].password_hash.
func hashPasswordCmd() *cobra.Command {
	var (
		algo       string
		bcryptCost int
		skipPolicy bool
	)
	cmd := &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Hashea una contraseña (argon2id o bcrypt); sin argumento lee stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plain, err := readSecret(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			if !skipPolicy {
				if err := password.DefaultPolicy.Validate(plain); err != nil {
					return err
				}
			}
			var hash string
			switch algo {
			case "argon2id":
				hash, err = password.Hash(password.Default, plain)
			case "bcrypt":
				hash, err = password.HashBcrypt(plain, bcryptCost)
			default:
				return fmt.Errorf("algoritmo desconocido %q (argon2id|bcrypt)", algo)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	cmd.Flags().StringVar(&algo, "algo", "argon2id", "argon2id|bcrypt")
	cmd.Flags().IntVar(&bcryptCost, "cost", 12, "Costo bcrypt")
	cmd.Flags().BoolVar(&skipPolicy, "no-policy", false, "No validar la política de contraseñas")
	return cmd
}

func readSecret(in io.Reader, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	b, err := io.ReadAll(io.LimitReader(in, 4096))
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}

// captcha-preview: renderiza un captcha de imagen a disco para ajustar
// tamaño y ruido sin levantar el server.
func captchaPreviewCmd() *cobra.Command {
	var (
		out  string
		opts captcha.ImageOptions
	)
	cmd := &cobra.Command{
		Use:   "captcha-preview",
		Short: "Escribe un PNG de ejemplo del canal image",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ch, err := captcha.NewImageGenerator(opts, nil).Generate()
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, ch.Payload, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", ch.Code, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "captcha.png", "Archivo de salida")
	cmd.Flags().IntVar(&opts.Length, "length", 4, "Cantidad de caracteres")
	cmd.Flags().IntVar(&opts.Width, "width", 120, "Ancho en px")
	cmd.Flags().IntVar(&opts.Height, "height", 40, "Alto en px")
	cmd.Flags().IntVar(&opts.NoiseLines, "noise", 4, "Líneas de ruido")
	cmd.Flags().StringVar(&opts.Charset, "charset", "", "Alfabeto (vacío: default)")
	return cmd
}

// encrypt-secret: sella un valor para la config (enc:...). Usa
// SECRETBOX_MASTER_KEY.
func encryptSecretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt-secret [value]",
		Short: "Cifra un valor para usar en el YAML; sin argumento lee stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plain, err := readSecret(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			box, err := secretbox.FromEnv()
			if err != nil {
				return err
			}
			sealed, err := box.Seal(plain)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sealed)
			return nil
		},
	}
}
