// Mindscope CLI — инструмент командной строки для загрузки сеансов
// и чтения результатов анализа через HTTP API.
//
// Использование:
//
//	mindscope [--api-url URL] [--json] <command> [args] [flags]
//
// Команды:
//
//	upload    Загрузка видео и запуск обработки
//	analysis  Результаты анализа и история владельца
//	advise    Super Advisor
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Mindscope/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "mindscope",
		Short:         "Mindscope CLI — therapy session analysis",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultURL := "http://localhost:8080"
	if v := os.Getenv("MINDSCOPE_API_URL"); v != "" {
		defaultURL = v
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", defaultURL, "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewUploadCmd(clientFn, outputFn),
		cli.NewAnalysisCmd(clientFn, outputFn),
		cli.NewAdviseCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
