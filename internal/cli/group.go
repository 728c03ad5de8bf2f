package cli

import (
	"context"
	"fmt"
)

func (a *App) Open(ctx context.Context, args []string) error {
	if len(args) != 1 {
		printlnFn("Usage: open <group>")
		return nil
	}
	if err := a.service.OpenGroup(ctx, args[0]); err != nil {
		printlnFn("Failed to open group:", err)
		return err
	}
	printlnFn("Syncing group", args[0])
	return nil
}

func (a *App) Close(ctx context.Context, args []string) error {
	if len(args) != 1 {
		printlnFn("Usage: close <group>")
		return nil
	}
	if err := a.service.CloseGroup(ctx, args[0]); err != nil {
		printlnFn("Failed to close group:", err)
		return err
	}
	printlnFn("Stopped syncing group", args[0])
	return nil
}

func (a *App) Leave(ctx context.Context, args []string) error {
	if len(args) != 1 {
		printlnFn("Usage: leave <group>")
		return nil
	}
	if !Confirm(a.reader, fmt.Sprintf("Leave group %s and erase its local data?", args[0]), a.out) {
		printlnFn("Cancelled")
		return nil
	}
	if err := a.service.LeaveGroup(ctx, args[0]); err != nil {
		printlnFn("Failed to leave group:", err)
		return err
	}
	printlnFn("Left group", args[0])
	return nil
}

func (a *App) Groups(ctx context.Context) error {
	groups, err := a.service.OpenGroups(ctx)
	if err != nil {
		printlnFn("Failed to list groups:", err)
		return err
	}
	if len(groups) == 0 {
		printlnFn("No open groups")
		return nil
	}
	for _, g := range groups {
		status := "stopped"
		if a.service.Engine(g) != nil {
			status = "syncing"
		}
		printlnFn(fmt.Sprintf("  %s [%s]", g, status))
	}
	return nil
}
