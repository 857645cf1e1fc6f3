package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/fivesaside/touchline/attendsync"
	"github.com/fivesaside/touchline/core"
	"github.com/fivesaside/touchline/core/attendance"
	"github.com/fivesaside/touchline/gateway"
	"github.com/fivesaside/touchline/querycache"
	"github.com/fivesaside/touchline/querycache/boltstore"
	logsvc "github.com/fivesaside/touchline/services/logger"
)

const msgUnreachable = "could not reach server, try again"

// client holds the flags and the synchronizer of one command run.
type client struct {
	server    string
	token     string
	userID    string
	cachePath string

	out        io.Writer
	logger     core.Logger
	httpClient *http.Client // nil uses the gateway default

	bolt *boltstore.Store
	sync *attendsync.Synchronizer
}

func (c *client) open() error {
	if c.token == "" {
		return errors.New("missing token: pass --token or set TOUCHLINE_TOKEN")
	}
	if c.userID == "" {
		sub, err := tokenSubject(c.token)
		if err != nil {
			return err
		}
		c.userID = sub
	}

	opts := querycache.Options{StaleTime: core.Conf.Cache.StaleTime, Logger: c.logger}
	if c.cachePath != "" {
		bolt, err := boltstore.Open(c.cachePath)
		if err != nil {
			return err
		}
		c.bolt = bolt
		opts.Persister = bolt
		opts.PersistPrefixes = []string{attendsync.KeyPrefix}
		opts.Decode = attendsync.Decode
	}
	store := querycache.New(opts)
	if err := store.Load(); err != nil {
		c.logger.Warn("warming cache", err)
	}

	gw := gateway.NewHTTPGateway(c.server, c.token, c.httpClient)
	c.sync = attendsync.New(store, gw, c.logger)
	return nil
}

func (c *client) close() error {
	if c.bolt == nil {
		return nil
	}
	err := c.bolt.Close()
	c.bolt = nil
	return err
}

// run executes the command tree and closes the cache file, also when the command failed.
func run(ctx context.Context, c *client, root *cobra.Command) error {
	err := root.ExecuteContext(ctx)
	if cerr := c.close(); err == nil {
		err = cerr
	}
	return err
}

// tokenSubject reads the user id of the token. The server verifies the signature.
func tokenSubject(token string) (string, error) {
	claims := new(jwt.StandardClaims)
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return "", errors.Wrap(err, "parsing token")
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// userMessage turns gateway failures into what the player should read.
func userMessage(err error) string {
	var rej *gateway.RejectionError
	switch {
	case gateway.IsTransport(err):
		return msgUnreachable
	case errors.As(err, &rej):
		return rej.Message
	}
	var verr *core.ValidationError
	if errors.As(err, &verr) && len(verr.Fields) > 0 {
		msgs := make([]string, 0, len(verr.Fields))
		for _, f := range verr.Fields {
			msgs = append(msgs, f.Field+": "+f.Error)
		}
		return strings.Join(msgs, "; ")
	}
	return err.Error()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newRootCmd(c *client) *cobra.Command {
	root := &cobra.Command{
		Use:           "touchline",
		Short:         "Declare and follow match attendance",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			c.out = cmd.OutOrStdout()
			return c.open()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.server, "server", envOr("TOUCHLINE_SERVER", "http://"+core.Conf.Server.Host), "API base URL")
	flags.StringVar(&c.token, "token", os.Getenv("TOUCHLINE_TOKEN"), "API token")
	flags.StringVar(&c.userID, "user", "", "user id (defaults to the token user)")
	flags.StringVar(&c.cachePath, "cache", core.Conf.Cache.BoltPath, "cache file kept between runs (empty disables)")

	root.AddCommand(newRSVPCmd(c), newStatusCmd(c), newListCmd(c), newCountsCmd(c))
	return root
}

func newRSVPCmd(c *client) *cobra.Command {
	var home, away string
	cmd := &cobra.Command{
		Use:   "rsvp MATCH_ID attending|absent|maybe",
		Short: "Declare your attendance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			status, err := attendance.ParseStatus(args[1])
			if err != nil {
				return err
			}
			if err = c.sync.SetAttendance(ctx, args[0], c.userID, status); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "You are %s.\n", status)
			return c.printCounts(ctx, args[0], home, away)
		},
	}
	cmd.Flags().StringVar(&home, "home", "", "home team id")
	cmd.Flags().StringVar(&away, "away", "", "away team id")
	return cmd
}

func newStatusCmd(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "status MATCH_ID",
		Short: "Show your declared attendance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := c.sync.Status(cmd.Context(), args[0], c.userID)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, status)
			return nil
		},
	}
}

func newListCmd(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "list MATCH_ID",
		Short: "List the declarations of a match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := c.sync.List(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "USER\tTEAM\tSTATUS")
			for _, rec := range list {
				team := rec.TeamID
				if team == "" {
					team = "guest"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", rec.UserID, team, rec.Status)
			}
			return w.Flush()
		},
	}
}

func newCountsCmd(c *client) *cobra.Command {
	var home, away string
	cmd := &cobra.Command{
		Use:   "counts MATCH_ID",
		Short: "Show how many players are coming",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.printCounts(cmd.Context(), args[0], home, away)
		},
	}
	cmd.Flags().StringVar(&home, "home", "", "home team id")
	cmd.Flags().StringVar(&away, "away", "", "away team id")
	return cmd
}

func (c *client) printCounts(ctx context.Context, matchID, home, away string) error {
	counts, err := c.sync.Counts(ctx, matchID, home, away)
	if err != nil {
		return err
	}
	printTally := func(label string, t attendance.Tally) {
		fmt.Fprintf(c.out, "%-6s attending %d, absent %d, maybe %d\n", label, t.Attending, t.Absent, t.Maybe)
	}
	printTally("total", counts.Total)
	if home != "" {
		printTally("home", counts.Home)
	}
	if away != "" {
		printTally("away", counts.Away)
	}
	return nil
}

func newLogger(out io.Writer) core.Logger {
	return logsvc.NewLogger(out, core.Conf)
}
