package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Skufu/il17a-response/internal/explain"
)

const envPrefix = "RESPONDCTL"

// newRootCmd builds the command tree with its own viper instance, so tests
// can run commands side by side.
func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	root := &cobra.Command{
		Use:   "respondctl",
		Short: "Predict IL-17A inhibitor response from clinical values",
		Long: `respondctl runs the fitted IL-17A inhibitor response model locally.
It prints the feature schema, predicts whether a patient is likely to respond
and explains the prediction with per-feature SHAP contributions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(v, cfgFile)
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml)")
	root.PersistentFlags().String("model", filepath.Join("models", "rf_model.json"), "path to the model artifact (or set RESPONDCTL_MODEL)")
	root.PersistentFlags().Duration("explain-timeout", explain.DefaultTimeout, "upper bound for computing an explanation")
	root.PersistentFlags().StringP("output", "o", "text", "output format: text, json or yaml")

	_ = v.BindPFlag("model", root.PersistentFlags().Lookup("model"))
	_ = v.BindPFlag("explain_timeout", root.PersistentFlags().Lookup("explain-timeout"))
	_ = v.BindPFlag("output", root.PersistentFlags().Lookup("output"))

	root.AddCommand(newSchemaCmd(v), newPredictCmd(v))
	return root
}

func initConfig(v *viper.Viper, cfgFile string) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgFile == "" {
		return nil
	}
	v.SetConfigFile(cfgFile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", cfgFile, err)
	}
	return nil
}

func outputFormat(v *viper.Viper) (string, error) {
	format := strings.ToLower(v.GetString("output"))
	switch format {
	case "text", "json", "yaml":
		return format, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
	}
}
