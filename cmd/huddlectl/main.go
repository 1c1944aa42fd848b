package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ajoshi-dev/huddle/internal/config"
	"github.com/ajoshi-dev/huddle/internal/groupapi"
)

func main() {
	serverFlag := flag.String("server", "", "group service base URL (overrides config)")
	userFlag := flag.String("user", "", "username (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	cfg, err := config.LoadOrDefault(config.Path())
	if err != nil {
		fatalf("load config: %v", err)
	}
	if *serverFlag != "" {
		cfg.ServerURL = *serverFlag
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	user := config.ResolveUser(*userFlag)
	client := groupapi.New(cfg.ServerURL, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	switch args[0] {
	case "login":
		cmdLogin(ctx, client, args[1:], cfg)
	case "create":
		cmdCreate(ctx, client, args[1:], user, *jsonFlag)
	case "groups":
		cmdGroups(ctx, client, user, *jsonFlag)
	case "info":
		cmdInfo(ctx, client, args[1:], *jsonFlag)
	case "leave":
		cmdLeave(ctx, client, args[1:], user)
	case "remove-member":
		cmdRemoveMember(ctx, client, args[1:], user)
	case "delete-group":
		cmdDeleteGroup(ctx, client, args[1:], user)
	case "update":
		cmdUpdate(ctx, client, args[1:], user, *jsonFlag)
	case "check-name":
		cmdCheckName(ctx, client, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: huddlectl [--server <url>] [--user <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  login <name>                     Register and save as default user")
	fmt.Fprintln(os.Stderr, "  create <group> [minutes]         Create a group (default lifetime 60 min)")
	fmt.Fprintln(os.Stderr, "  groups                           List groups you are a member of")
	fmt.Fprintln(os.Stderr, "  info <group>                     Show group details")
	fmt.Fprintln(os.Stderr, "  leave <group>                    Leave a group")
	fmt.Fprintln(os.Stderr, "  remove-member <group> <target>   Remove a member (admin only)")
	fmt.Fprintln(os.Stderr, "  delete-group <group>             Delete a group (admin only)")
	fmt.Fprintln(os.Stderr, "  update <group> <name> <extend>   Rename and/or extend expiry (admin only)")
	fmt.Fprintln(os.Stderr, "  check-name <group>               Check whether a group name is free")
}

func cmdLogin(ctx context.Context, c *groupapi.Client, args []string, cfg *config.Config) {
	if len(args) != 1 {
		fatalf("usage: huddlectl login <name>")
	}
	name := args[0]
	if err := config.ValidateName(name); err != nil {
		fatalf("%v", err)
	}
	if err := c.Login(ctx, name); err != nil {
		fatalf("login: %v", err)
	}
	cfg.DefaultUser = name
	if err := config.Save(config.Path(), cfg); err != nil {
		fatalf("save config: %v", err)
	}
	fmt.Printf("logged in as %s\n", name)
}

func cmdCreate(ctx context.Context, c *groupapi.Client, args []string, user string, jsonOut bool) {
	requireUser(user)
	if len(args) < 1 || len(args) > 2 {
		fatalf("usage: huddlectl create <group> [minutes]")
	}
	minutes := 60
	if len(args) == 2 {
		m, err := strconv.Atoi(args[1])
		if err != nil || m <= 0 {
			fatalf("bad lifetime %q", args[1])
		}
		minutes = m
	}
	group, err := c.Create(ctx, args[0], user, minutes)
	if err != nil {
		if errors.Is(err, groupapi.ErrNameTaken) {
			fatalf("group name %q is taken", args[0])
		}
		fatalf("create: %v", err)
	}
	if _, err := c.Join(ctx, args[0], user); err != nil {
		fatalf("join after create: %v", err)
	}
	if jsonOut {
		outputJSON(group)
		return
	}
	fmt.Printf("created %s, expires %s\n", group.GroupName, group.ExpiresAt)
}

func cmdGroups(ctx context.Context, c *groupapi.Client, user string, jsonOut bool) {
	requireUser(user)
	groups, err := c.ListGroups(ctx, user)
	if err != nil {
		fatalf("list groups: %v", err)
	}
	if jsonOut {
		outputJSON(groups)
		return
	}
	if len(groups) == 0 {
		fmt.Println("no groups")
		return
	}
	for _, g := range groups {
		fmt.Printf("%s\t%d members\texpires %s\n", g.GroupName, len(g.Members), g.ExpiresAt)
	}
}

func cmdInfo(ctx context.Context, c *groupapi.Client, args []string, jsonOut bool) {
	if len(args) != 1 {
		fatalf("usage: huddlectl info <group>")
	}
	group, err := c.Metadata(ctx, args[0])
	if err != nil {
		fatalf("group %q not found", args[0])
	}
	if jsonOut {
		outputJSON(group)
		return
	}
	fmt.Printf("Group:    %s\n", group.GroupName)
	fmt.Printf("Admin:    %s\n", group.CreatedBy)
	fmt.Printf("Created:  %s\n", group.CreatedAt)
	fmt.Printf("Expires:  %s (in %.0f min)\n", group.ExpiresAt, group.ExpiresInMinutes(time.Now()))
	fmt.Printf("Members:  %d\n", len(group.Members))
	for _, m := range group.Members {
		fmt.Printf("  %s\n", m)
	}
}

func cmdLeave(ctx context.Context, c *groupapi.Client, args []string, user string) {
	requireUser(user)
	if len(args) != 1 {
		fatalf("usage: huddlectl leave <group>")
	}
	if err := c.Leave(ctx, args[0], user); err != nil {
		fatalf("leave: %v", err)
	}
	fmt.Printf("left %s\n", args[0])
}

func cmdRemoveMember(ctx context.Context, c *groupapi.Client, args []string, user string) {
	requireUser(user)
	if len(args) != 2 {
		fatalf("usage: huddlectl remove-member <group> <target>")
	}
	if err := c.RemoveMember(ctx, args[0], user, args[1]); err != nil {
		if errors.Is(err, groupapi.ErrNotAdmin) {
			fatalf("only the group admin can remove members")
		}
		fatalf("remove member: %v", err)
	}
	fmt.Printf("removed %s from %s\n", args[1], args[0])
}

func cmdDeleteGroup(ctx context.Context, c *groupapi.Client, args []string, user string) {
	requireUser(user)
	if len(args) != 1 {
		fatalf("usage: huddlectl delete-group <group>")
	}
	if err := c.DeleteGroup(ctx, args[0], user); err != nil {
		switch {
		case errors.Is(err, groupapi.ErrNotAdmin):
			fatalf("only the group admin can delete the group")
		case errors.Is(err, groupapi.ErrNotFound):
			fatalf("group %q not found", args[0])
		}
		fatalf("delete group: %v", err)
	}
	fmt.Printf("deleted %s\n", args[0])
}

func cmdUpdate(ctx context.Context, c *groupapi.Client, args []string, user string, jsonOut bool) {
	requireUser(user)
	if len(args) != 3 {
		fatalf("usage: huddlectl update <group> <new-name> <extend-minutes> (use the current name or 0 to keep)")
	}
	extend, err := strconv.Atoi(args[2])
	if err != nil || extend < 0 {
		fatalf("bad extend value %q", args[2])
	}
	group, err := c.UpdateSettings(ctx, args[0], user, args[1], extend)
	if err != nil {
		if errors.Is(err, groupapi.ErrNotAdmin) {
			fatalf("only the group admin can update settings")
		}
		fatalf("update: %v", err)
	}
	if jsonOut {
		outputJSON(group)
		return
	}
	fmt.Printf("updated: %s expires %s\n", group.GroupName, group.ExpiresAt)
}

func cmdCheckName(ctx context.Context, c *groupapi.Client, args []string) {
	if len(args) != 1 {
		fatalf("usage: huddlectl check-name <group>")
	}
	available, err := c.CheckName(ctx, args[0])
	if err != nil {
		fatalf("check name: %v", err)
	}
	if available {
		fmt.Printf("%s is available\n", args[0])
	} else {
		fmt.Printf("%s is taken\n", args[0])
	}
}

func requireUser(user string) {
	if user == "" {
		fatalf("no user: run 'huddlectl login <name>' or pass --user")
	}
}

func outputJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatalf("marshal: %v", err)
	}
	fmt.Println(string(data))
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
