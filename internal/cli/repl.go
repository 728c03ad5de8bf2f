package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

// execIface is the command surface the REPL dispatches to. The real App
// satisfies it; tests provide a stub.
type execIface interface {
	Open(ctx context.Context, args []string) error
	Close(ctx context.Context, args []string) error
	Leave(ctx context.Context, args []string) error
	Groups(ctx context.Context) error
	Publish(ctx context.Context, args []string) error
	Books(ctx context.Context, args []string) error
	Read(ctx context.Context, args []string) error
	Export(ctx context.Context, args []string) error
}

// runREPL reads lines, takes the first token as the command, and dispatches
// to a. Handlers print their own errors; the loop exits on EOF or
// "exit"/"quit".
func runREPL(ctx context.Context, a execIface, scanner *bufio.Scanner) {
	printlnFn("bookfeed (type 'help' for commands)")

	for {
		printlnFn("bookfeed > ")
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			printlnFn("Available commands:")
			printlnFn("  open <group>                  start syncing a group")
			printlnFn("  close <group>                 stop syncing, keep data")
			printlnFn("  leave <group>                 stop syncing and wipe local data")
			printlnFn("  groups                        list open groups")
			printlnFn("  publish <group> <file.epub>   publish a book")
			printlnFn("  books <group>                 list books and their sync state")
			printlnFn("  read <group> <book> <out>     save an assembled book to a file")
			printlnFn("  export <group> <book>         upload a book to object storage")
			printlnFn("  exit | quit")

		case "open":
			_ = a.Open(ctx, args)

		case "close":
			_ = a.Close(ctx, args)

		case "leave":
			_ = a.Leave(ctx, args)

		case "groups":
			_ = a.Groups(ctx)

		case "publish":
			_ = a.Publish(ctx, args)

		case "books", "list", "l":
			_ = a.Books(ctx, args)

		case "read":
			_ = a.Read(ctx, args)

		case "export":
			_ = a.Export(ctx, args)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
