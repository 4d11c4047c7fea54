package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/asaskevich/govalidator"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"selfserv.net/certsync/addr"
	"selfserv.net/certsync/certs"
	"selfserv.net/certsync/selfserv"
	"selfserv.net/certsync/utils"
)

var command = &cobra.Command{
	Use:   "selfserv-certsync",
	Short: "Keep a selfserv.net certificate bound to this machine's IPv4 address",
	PreRun: func(cmd *cobra.Command, args []string) {
		viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
		viper.SetEnvPrefix("SELFSERV")
		viper.AutomaticEnv()

		conf, err := utils.InitConfig()
		if err != nil {
			utils.Logger.Fatal().Err(err).Msg("Invalid arguments")
		}
		utils.InitLogger(conf.LogFile)

		if err := validateConfig(conf.TokenPath, conf.CertPath, conf.KeyPath, conf.IP, conf.Resolver, conf.Endpoint); err != nil {
			utils.Logger.Fatal().Err(err).Msg("Invalid arguments")
		}

		token, err := readToken(conf.TokenPath)
		if err != nil {
			utils.Logger.Fatal().Err(err).Str("path", conf.TokenPath).Msg("Unable to read auth token")
		}
		conf.AuthToken = token
	},
	Run: func(cmd *cobra.Command, args []string) {
		conf := utils.GetConfig()

		resolver, err := newResolver(conf.IP, conf.Resolver)
		if err != nil {
			utils.Logger.Fatal().Err(err).Msg("Invalid arguments")
		}

		updater := certs.NewUpdater(
			resolver,
			selfserv.NewClient(conf.Endpoint),
			certs.NewFileStore(conf.CertPath, conf.KeyPath, conf.Atomic),
			conf.AuthToken,
			utils.Logger,
		)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		utils.Logger.Info().
			Str("cert", conf.CertPath).
			Str("key", conf.KeyPath).
			Str("endpoint", conf.Endpoint).
			Msg("Starting certificate sync")

		err = updater.Run(ctx)
		if errors.Is(err, context.Canceled) {
			utils.Logger.Info().Msg("Stopped")
			return
		}
		utils.Logger.Fatal().Err(err).Msg("Failed to persist certificate")
	},
}

func validateConfig(tokenPath, certPath, keyPath, ip, resolver, endpoint string) error {
	if tokenPath == "" {
		return errors.New("--token is required")
	}
	if certPath == "" {
		return errors.New("--cert is required")
	}
	if keyPath == "" {
		return errors.New("--key is required")
	}
	if ip != "" && !govalidator.IsIPv4(ip) {
		return fmt.Errorf("--ip %q is not an IPv4 address", ip)
	}
	if resolver != "route" && resolver != "dns" {
		return fmt.Errorf("--resolver must be \"route\" or \"dns\", got %q", resolver)
	}

	parsedEndpoint, err := url.Parse(endpoint)
	if err != nil || !govalidator.IsURL(endpoint) || (parsedEndpoint.Scheme != "https" && parsedEndpoint.Scheme != "http") {
		return fmt.Errorf("--endpoint %q is not an http(s) URL", endpoint)
	}

	return nil
}

func readToken(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	token := strings.TrimSpace(string(content))
	if token == "" {
		return "", errors.New("token file is empty")
	}

	return token, nil
}

func newResolver(ip, resolver string) (certs.Resolver, error) {
	if ip != "" {
		parsed, err := addr.Parse(ip)
		if err != nil {
			return nil, err
		}
		return addr.Fixed(parsed), nil
	}

	if resolver == "dns" {
		return addr.NewDNSResolver(), nil
	}

	return addr.NewRouteResolver(), nil
}

func Execute() {
	command.Flags().String("token", "", "Path to a file containing the auth token (required)")
	viper.BindPFlag("token", command.Flags().Lookup("token"))

	command.Flags().String("cert", "", "Path to save the SSL certificate to (required)")
	viper.BindPFlag("cert", command.Flags().Lookup("cert"))

	command.Flags().String("key", "", "Path to save the SSL key to (required)")
	viper.BindPFlag("key", command.Flags().Lookup("key"))

	command.Flags().String("ip", "", "Use this IPv4 address instead of automatically detecting one")
	viper.BindPFlag("ip", command.Flags().Lookup("ip"))

	command.Flags().String("resolver", "route", "How to detect the address: \"route\" (outbound interface) or \"dns\" (public address via OpenDNS)")
	viper.BindPFlag("resolver", command.Flags().Lookup("resolver"))

	command.Flags().String("endpoint", selfserv.DefaultEndpoint, "Base URL of the selfserv API")
	viper.BindPFlag("endpoint", command.Flags().Lookup("endpoint"))

	command.Flags().String("log-file", "", "Also write logs to this file, rotated")
	viper.BindPFlag("log-file", command.Flags().Lookup("log-file"))

	command.Flags().Bool("atomic", true, "Replace each output file through a temporary file and rename")
	viper.BindPFlag("atomic", command.Flags().Lookup("atomic"))

	if err := command.Execute(); err != nil {
		utils.Logger.Fatal().Err(err).Msg("Failed to run selfserv-certsync")
	}
}
