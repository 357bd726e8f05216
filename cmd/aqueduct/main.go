// Package main is the entry point for the aqueduct expression service
// and CLI.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aqueductflow/aqueduct/pkg/api"
	"github.com/aqueductflow/aqueduct/pkg/eval"
	"github.com/aqueductflow/aqueduct/pkg/expr"
	"github.com/aqueductflow/aqueduct/pkg/secrets"
	"github.com/aqueductflow/aqueduct/pkg/template"
	"github.com/aqueductflow/aqueduct/pkg/types"
	"github.com/aqueductflow/aqueduct/pkg/validate"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "aqueduct",
	Short: "Workflow template expression service",
}

func init() {
	rootCmd.Version = version + " (commit=" + commit + ", built=" + date + ")"
	rootCmd.SetVersionTemplate("aqueduct version {{.Version}}\n")

	evalCmd.Flags().String("operand", "", "YAML/JSON file with the operand contexts")
	evalCmd.Flags().Bool("non-strict", false, "Resolve missing context paths to null instead of failing")

	validateCmd.Flags().String("environment", "", "Secret lookup environment (default default, env ENVIRONMENT)")
	validateCmd.Flags().String("secrets-file", "", "YAML file of secrets to validate against (env SECRETS_FILE)")

	serveCmd.Flags().Int("port", 0, "HTTP server port (default 8080, env PORT)")
	serveCmd.Flags().String("host", "", "Bind address (default 0.0.0.0, env HOST)")
	serveCmd.Flags().String("secrets-file", "", "YAML file of secrets to preload (env SECRETS_FILE)")

	rootCmd.AddCommand(evalCmd, validateCmd, scanCmd, secretsCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var evalCmd = &cobra.Command{
	Use:   "eval EXPRESSION",
	Short: "Evaluate a template expression",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		operand := map[string]types.Value{}
		if path, _ := cmd.Flags().GetString("operand"); path != "" {
			doc, err := loadDocument(path)
			if err != nil {
				return err
			}
			if doc.Type() != types.TypeMap {
				return fmt.Errorf("operand file must contain a mapping at the top level")
			}
			m := doc.AsMap()
			for _, k := range m.Keys() {
				v, _ := m.Get(k)
				operand[k] = v
			}
		}

		ev := eval.New(operand)
		if nonStrict, _ := cmd.Flags().GetBool("non-strict"); nonStrict {
			ev = eval.NewNonStrict(operand)
		}

		node, err := expr.Parse(args[0])
		if err != nil {
			return err
		}
		result, err := ev.Eval(node)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate WORKFLOW_FILE",
	Short: "Statically validate every expression in a workflow definition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := loadDocument(args[0])
		if err != nil {
			return err
		}

		environment := envOrDefault("ENVIRONMENT", "default")
		if v, _ := cmd.Flags().GetString("environment"); v != "" {
			environment = v
		}

		store := secrets.NewStore()
		secretsFile := os.Getenv("SECRETS_FILE")
		if v, _ := cmd.Flags().GetString("secrets-file"); v != "" {
			secretsFile = v
		}
		if secretsFile != "" {
			if err := loadSecrets(store, secretsFile); err != nil {
				return err
			}
		}

		schema := validate.WorkflowSchema{
			ActionRefs:  topLevelKeys(doc, "actions"),
			Inputs:      topLevelKeys(doc, "inputs"),
			Environment: environment,
		}

		v := validate.New(schema, store, store)
		for _, expression := range template.Scan(doc) {
			v.Validate(expression)
		}
		results := v.Finish(cmd.Context())

		if err := printJSON(results); err != nil {
			return err
		}
		for _, r := range results {
			if r.Status == validate.StatusError {
				return fmt.Errorf("validation failed")
			}
		}
		return nil
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan DOCUMENT_FILE",
	Short: "List every template expression in a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := loadDocument(args[0])
		if err != nil {
			return err
		}
		for _, expression := range template.Scan(doc) {
			fmt.Println(expression)
		}
		return nil
	},
}

var secretsCmd = &cobra.Command{
	Use:   "secrets DOCUMENT_FILE",
	Short: "List every secret reference used by a document's expressions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := loadDocument(args[0])
		if err != nil {
			return err
		}
		refs := template.ExtractSecretPaths(doc)
		return printJSON(refs)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the expression service API",
	RunE: func(cmd *cobra.Command, args []string) error {
		port := envOrDefault("PORT", "8080")
		if v, _ := cmd.Flags().GetInt("port"); v != 0 {
			port = fmt.Sprintf("%d", v)
		}
		host := envOrDefault("HOST", "0.0.0.0")
		if v, _ := cmd.Flags().GetString("host"); v != "" {
			host = v
		}

		store := secrets.NewStore()
		secretsFile := os.Getenv("SECRETS_FILE")
		if v, _ := cmd.Flags().GetString("secrets-file"); v != "" {
			secretsFile = v
		}
		if secretsFile != "" {
			if err := loadSecrets(store, secretsFile); err != nil {
				return err
			}
			log.Printf("Loaded secrets from %s", secretsFile)
		}

		server := api.New(store)
		addr := fmt.Sprintf("%s:%s", host, port)

		// Graceful shutdown
		go func() {
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh
			log.Println("Shutting down...")
			if err := server.Shutdown(); err != nil {
				log.Printf("Error during shutdown: %v", err)
			}
		}()

		log.Printf("Expression service listening on %s", addr)
		return server.Listen(addr)
	},
}

// secretsFileDoc is the shape of a secrets preload file.
type secretsFileDoc struct {
	Environments map[string]map[string]map[string]string `yaml:"environments"`
	OAuth        []struct {
		Provider string `yaml:"provider"`
		Grant    string `yaml:"grant"`
	} `yaml:"oauth"`
}

func loadSecrets(store *secrets.Store, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading secrets file: %w", err)
	}
	var doc secretsFileDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parsing secrets file: %w", err)
	}
	for environment, names := range doc.Environments {
		for name, keys := range names {
			for key, value := range keys {
				store.Put(environment, name, key, value)
			}
		}
	}
	for _, grant := range doc.OAuth {
		store.GrantOAuth(grant.Provider, grant.Grant)
	}
	return nil
}

// loadDocument reads a YAML or JSON file into a Value. JSON is a subset
// of YAML, so a single decoder covers both.
func loadDocument(path string) (types.Value, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return types.Null, fmt.Errorf("reading %s: %w", path, err)
	}
	var decoded interface{}
	if err := yaml.Unmarshal(raw, &decoded); err != nil {
		return types.Null, fmt.Errorf("parsing %s: %w", path, err)
	}
	return types.FromGo(decoded), nil
}

// topLevelKeys returns the key set of a top-level mapping field, or nil
// when the field is absent or not a mapping.
func topLevelKeys(doc types.Value, field string) map[string]bool {
	if doc.Type() != types.TypeMap {
		return nil
	}
	section, ok := doc.AsMap().Get(field)
	if !ok || section.Type() != types.TypeMap {
		return nil
	}
	keys := make(map[string]bool)
	for _, k := range section.AsMap().Keys() {
		keys[k] = true
	}
	return keys
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
