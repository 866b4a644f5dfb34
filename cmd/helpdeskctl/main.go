package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/helpdeskpro/helpdesk/internal/db"
	"github.com/helpdeskpro/helpdesk/internal/directory"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	if len(os.Args) < 3 {
		usage()
		os.Exit(1)
	}

	_ = godotenv.Load()

	ctx := context.Background()

	dsn := strings.TrimSpace(os.Getenv("DB_DSN"))
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if dsn == "" {
		log.Fatal().Msg("defina DB_DSN ou DATABASE_URL")
	}

	pool, err := db.NewPool(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("não foi possível conectar ao banco")
	}
	defer pool.Close()

	repo := directory.NewPGRepository(pool)

	if err := dispatch(ctx, repo, os.Args[1], os.Args[2], os.Args[3:]); err != nil {
		if errors.Is(err, errUsage) {
			usage()
			os.Exit(1)
		}
		log.Fatal().Err(err).Str("cmd", os.Args[1]+" "+os.Args[2]).Msg("comando falhou")
	}
}

var errUsage = errors.New("uso inválido")

func dispatch(ctx context.Context, repo *directory.PGRepository, group, action string, args []string) error {
	switch group + " " + action {
	case "queues list":
		queues, err := repo.ListQueues(ctx)
		if err != nil {
			return err
		}
		return printJSON(directory.GroupByClient(queues), "nenhuma fila cadastrada", len(queues))
	case "queues create":
		return runCreateQueue(ctx, repo, args)
	case "groups list":
		groups, err := repo.ListGroups(ctx)
		if err != nil {
			return err
		}
		return printJSON(groups, "nenhum grupo cadastrado", len(groups))
	case "groups create":
		return runCreateGroup(ctx, repo, args)
	case "users promote":
		if len(args) != 2 {
			return errUsage
		}
		p, err := repo.PromoteUser(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		return printJSON(p, "", 1)
	}
	return errUsage
}

func usage() {
	fmt.Fprintln(os.Stderr, "helpdeskctl")
	fmt.Fprintln(os.Stderr, "uso:")
	fmt.Fprintln(os.Stderr, "  helpdeskctl queues list")
	fmt.Fprintln(os.Stderr, "  helpdeskctl queues create --name \"N1\" --client \"Cliente\" [--description \"...\"]")
	fmt.Fprintln(os.Stderr, "  helpdeskctl groups list")
	fmt.Fprintln(os.Stderr, "  helpdeskctl groups create --name \"Suporte\" [--description \"...\"]")
	fmt.Fprintln(os.Stderr, "  helpdeskctl users promote email@empresa.com ADMIN|TECHNICIAN|CLIENT")
}

func runCreateQueue(ctx context.Context, repo *directory.PGRepository, args []string) error {
	fs := flag.NewFlagSet("queues create", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		name        = fs.String("name", "", "nome da fila")
		client      = fs.String("client", "", "cliente atendido pela fila")
		description = fs.String("description", "", "descrição opcional")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	q, err := repo.CreateQueue(ctx, *name, *client, *description)
	if err != nil {
		return err
	}
	return printJSON(q, "", 1)
}

func runCreateGroup(ctx context.Context, repo *directory.PGRepository, args []string) error {
	fs := flag.NewFlagSet("groups create", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		name        = fs.String("name", "", "nome do grupo")
		description = fs.String("description", "", "descrição opcional")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	g, err := repo.CreateGroup(ctx, *name, *description)
	if err != nil {
		return err
	}
	return printJSON(g, "", 1)
}

func printJSON(v any, empty string, n int) error {
	if n == 0 && empty != "" {
		fmt.Println(empty)
		return nil
	}
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}
