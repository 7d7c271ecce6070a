package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/guildmod/warden/reactmon"
	"github.com/guildmod/warden/reactmon/watchstore"
	"github.com/guildmod/warden/util/cliutil"

	cli "github.com/urfave/cli/v2"
	"github.com/xlab/treeprint"
)

var watchCmd = &cli.Command{
	Name:  "watch",
	Usage: "inspect persisted reaction watch configuration",
	Subcommands: []*cli.Command{
		&cli.Command{
			Name:      "show",
			Usage:     "print watch configuration as a tree",
			ArgsUsage: "[<guild-id>...]",
			Action:    runWatchShow,
		},
	},
}

func runWatchShow(cctx *cli.Context) error {
	ctx := cctx.Context
	db, err := cliutil.SetupDatabase(cctx.String("database-url"), cctx.Int("max-db-connections"))
	if err != nil {
		return err
	}
	store, err := watchstore.NewGormStore(db)
	if err != nil {
		return err
	}
	cfgs, err := store.ListGuildWatchConfigs(ctx)
	if err != nil {
		return err
	}

	if cctx.Args().Len() > 0 {
		want := map[string]bool{}
		for _, id := range cctx.Args().Slice() {
			want[id] = true
		}
		var filtered []reactmon.WatchConfig
		for _, cfg := range cfgs {
			if want[cfg.GuildID] {
				filtered = append(filtered, cfg)
			}
		}
		cfgs = filtered
	}

	return printWatchTree(cctx.App.Writer, cfgs)
}

func printWatchTree(w io.Writer, cfgs []reactmon.WatchConfig) error {
	tree := treeprint.NewWithRoot(fmt.Sprintf("watch configuration (%d guilds)", len(cfgs)))
	for _, cfg := range cfgs {
		state := "inactive"
		if cfg.Watching {
			state = "active"
		}
		g := tree.AddBranch(fmt.Sprintf("guild %s [%s]", cfg.GuildID, state))
		g.AddNode(fmt.Sprintf("min react lifespan: %s", cfg.MinReactLifespan))
		g.AddNode(fmt.Sprintf("mute duration: %s", cfg.MuteDuration.Round(time.Second)))
		if cfg.MuteRoleID != "" {
			g.AddNode(fmt.Sprintf("mute role: %s", cfg.MuteRoleID))
		} else {
			g.AddNode("mute role: (none)")
		}

		keys := make([]string, 0, len(cfg.Watchlist))
		for k := range cfg.Watchlist {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		wl := g.AddBranch(fmt.Sprintf("watchlist (%d)", len(keys)))
		for _, k := range keys {
			wl.AddNode(fmt.Sprintf("%s: %s", k, cfg.Watchlist[k]))
		}
	}
	_, err := fmt.Fprint(w, tree.String())
	return err
}
