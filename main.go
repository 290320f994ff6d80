package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/awnumar/memguard"

	"github.com/illarion/lrzlock/cmd"
)

func main() {
	// memguard resets signal handlers, so it goes first. An interrupt wipes
	// passphrases and memguard buffers, then exits; SIGTERM cancels ctx and
	// lets the command unwind.
	memguard.CatchSignal(func(os.Signal) { cmd.WipeHeld() }, os.Interrupt)
	defer memguard.Purge()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	args := os.Args[1:]
	for len(args) > 0 && (args[0] == "-v" || args[0] == "--verbose") {
		cmd.Verbose = true
		args = args[1:]
	}

	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "init":
		runInit(ctx, args[1:])
	case "lock":
		runLock(ctx, args[1:])
	case "unlock":
		runUnlock(ctx, args[1:])
	case "rm":
		runRm(ctx, args[1:])
	case "ls":
		runLs(ctx, args[1:])
	case "status":
		runStatus(ctx, args[1:])
	case "passwd":
		runPasswd(ctx, args[1:])
	case "diff":
		runDiff(ctx, args[1:])
	case "verify":
		runVerify(ctx, args[1:])
	case "compact":
		runCompact(ctx, args[1:])
	case "keyring":
		runKeyring(ctx, args[1:])
	case "completion":
		runCompletion(ctx, args[1:])
	case "help", "-h", "--help":
		if len(args) < 2 {
			printUsage()
			return
		}
		printCommandHelp(args[1])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

// parse parses args for a subcommand that takes no flags of its own
func parse(name string, args []string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	return fs
}

func runInit(_ context.Context, args []string) {
	parse("init", args)
	cmd.Init()
}

func runLock(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("lock", flag.ExitOnError)
	removeShort := fs.Bool("r", false, "Remove original files after locking")
	removeLong := fs.Bool("remove", false, "Remove original files after locking")
	force := fs.Bool("force", false, "Lock without confirmation")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	remove := *removeShort || *removeLong

	if len(fs.Args()) > 0 {
		cmd.Lock(ctx, fs.Args(), remove)
		return
	}
	cmd.LockAll(ctx, remove, *force)
}

func runUnlock(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("unlock", flag.ExitOnError)
	force := fs.Bool("force", false, "Overwrite local files without asking")
	keepLocal := fs.Bool("keep-local", false, "Skip all conflicts, keep local versions")
	keepBoth := fs.Bool("keep-both", false, "Keep both local and vault versions")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	cmd.Unlock(ctx, fs.Args(), *force, *keepLocal, *keepBoth)
}

func runRm(ctx context.Context, args []string) {
	cmd.Remove(ctx, parse("rm", args).Args())
}

func runLs(ctx context.Context, args []string) {
	parse("ls", args)
	cmd.Ls(ctx)
}

func runStatus(ctx context.Context, args []string) {
	parse("status", args)
	cmd.Status(ctx)
}

func runPasswd(ctx context.Context, args []string) {
	parse("passwd", args)
	cmd.Passwd(ctx)
}

func runDiff(ctx context.Context, args []string) {
	parse("diff", args)
	cmd.Diff(ctx)
}

func runVerify(ctx context.Context, args []string) {
	parse("verify", args)
	cmd.Verify(ctx)
}

func runCompact(ctx context.Context, args []string) {
	parse("compact", args)
	cmd.Compact(ctx)
}

func runKeyring(_ context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: lrzlock keyring <save|delete|status>")
		os.Exit(1)
	}
	switch args[0] {
	case "save":
		cmd.KeyringSave()
	case "delete":
		cmd.KeyringDelete()
	case "status":
		cmd.KeyringStatus()
	default:
		fmt.Fprintf(os.Stderr, "Unknown keyring command: %s\n", args[0])
		fmt.Fprintln(os.Stderr, "Usage: lrzlock keyring <save|delete|status>")
		os.Exit(1)
	}
}

func runCompletion(_ context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: lrzlock completion <bash|zsh|fish>")
		os.Exit(1)
	}
	cmd.Completion(args[0])
}

func printUsage() {
	fmt.Println("lrzlock - encrypted file vault using lrzip-style AES block encryption")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  lrzlock [-v|--verbose] <command> [arguments]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  init        Create a .lrzlock vault in current directory")
	fmt.Println("  lock        Encrypt and store files in the vault")
	fmt.Println("  unlock      Decrypt and restore files from the vault")
	fmt.Println("  rm          Remove files from the vault")
	fmt.Println("  ls          List files stored in the vault")
	fmt.Println("  status      Show comprehensive vault status")
	fmt.Println("  passwd      Change vault passphrase")
	fmt.Println("  diff        Compare vault contents with local files")
	fmt.Println("  verify      Check every sealed file without writing anything")
	fmt.Println("  compact     Compact vault to reclaim disk space")
	fmt.Println("  keyring     Manage the passphrase in the OS keyring")
	fmt.Println("  completion  Generate shell completions")
	fmt.Println("  help        Show help for a command")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  lrzlock init                    # Create new vault")
	fmt.Println("  lrzlock lock .env --remove      # Lock .env and remove original")
	fmt.Println("  lrzlock unlock                  # Unlock all files")
	fmt.Println("  lrzlock -v verify               # Check the vault with debug logging")
	fmt.Println()
	fmt.Println("Settings are read from lrzlock.yaml and LRZLOCK_* environment variables.")
	fmt.Println("Use 'lrzlock help <command>' for more information about a command.")
}

func printCommandHelp(command string) {
	switch command {
	case "init":
		fmt.Println("lrzlock init")
		fmt.Println()
		fmt.Println("Creates a .lrzlock vault file in the current directory.")
		fmt.Println("Prompts for a passphrase, or reads LRZLOCK_PASSWORD.")
		fmt.Println("The passphrase is stretched with a date-based number of SHA-512")
		fmt.Println("loops unless 'encloops' is set in lrzlock.yaml.")
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  lrzlock init                     # Create new vault")
	case "lock":
		fmt.Println("lrzlock lock [--force] [-r|--remove] [<file> [file...]]")
		fmt.Println()
		fmt.Println("Encrypts and stores files in the vault, cut into blocks of")
		fmt.Println("'block_size' bytes that are each sealed with a fresh salt.")
		fmt.Println("When run without file arguments, locks all tracked files that have been modified.")
		fmt.Println("Supports glob patterns for multiple files.")
		fmt.Println()
		fmt.Println("Flags:")
		fmt.Println("  -r, --remove    Remove original files after locking")
		fmt.Println("  --force         Lock without confirmation (when no files specified)")
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  lrzlock lock                     # Lock all modified tracked files")
		fmt.Println("  lrzlock lock .env                # Lock specific .env file")
		fmt.Println("  lrzlock lock .env --remove       # Lock and remove original")
		fmt.Println("  lrzlock lock \"config/*.secret\"   # Lock multiple files with glob")
	case "unlock":
		fmt.Println("lrzlock unlock [--force|--keep-local|--keep-both] [<file> [file...]]")
		fmt.Println()
		fmt.Println("Decrypts and restores files from the vault.")
		fmt.Println("Every file is checked against its recorded hash before it is written.")
		fmt.Println("When run without file arguments, unlocks all files.")
		fmt.Println()
		fmt.Println("Flags:")
		fmt.Println("  --force        Overwrite local files without asking")
		fmt.Println("  --keep-local   Skip all conflicts, keep local versions")
		fmt.Println("  --keep-both    Keep both versions (save vault as .from-vault)")
		fmt.Println()
		fmt.Println("Interactive mode (default):")
		fmt.Println("  - Skips unchanged files")
		fmt.Println("  - For conflicts, offers:")
		fmt.Println("    [l] Keep local version")
		fmt.Println("    [v] Use vault version (overwrite local)")
		fmt.Println("    [e] Edit merged (opens in $EDITOR, text files only)")
		fmt.Println("    [b] Keep both (save vault as .from-vault)")
		fmt.Println("    [x] Skip this file")
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  lrzlock unlock                   # Unlock all files")
		fmt.Println("  lrzlock unlock \"*.env\"           # Unlock files matching pattern")
		fmt.Println("  lrzlock unlock --keep-both       # Keep both for all conflicts")
	case "rm":
		fmt.Println("lrzlock rm <file> [file...]")
		fmt.Println()
		fmt.Println("Removes files and their blocks from the vault, then compacts it.")
		fmt.Println("Supports glob patterns for multiple files.")
	case "ls":
		fmt.Println("lrzlock ls")
		fmt.Println()
		fmt.Println("Lists files in the vault with their size and block count.")
		fmt.Println("Does not require a passphrase.")
	case "status":
		fmt.Println("lrzlock status")
		fmt.Println()
		fmt.Println("Shows vault status including:")
		fmt.Println("  - Vault ID, cipher and hash loop count")
		fmt.Println("  - File count and total size")
		fmt.Println("  - File states (vault only, modified, unchanged, not sealed)")
		fmt.Println("  - Git hygiene of the vault and plaintext files")
		fmt.Println()
		fmt.Println("Does not require a passphrase.")
	case "passwd":
		fmt.Println("lrzlock passwd")
		fmt.Println()
		fmt.Println("Changes the vault passphrase.")
		fmt.Println("Draws a new archive salt and re-encrypts every block in one transaction.")
	case "diff":
		fmt.Println("lrzlock diff")
		fmt.Println()
		fmt.Println("Shows a unified diff between vault contents and local files.")
	case "verify":
		fmt.Println("lrzlock verify")
		fmt.Println()
		fmt.Println("Decrypts every block in validate mode and checks each file against")
		fmt.Println("its recorded hash. Nothing is written. Exits 1 if any file fails.")
	case "compact":
		fmt.Println("lrzlock compact")
		fmt.Println()
		fmt.Println("Compacts the .lrzlock database to reclaim unused disk space.")
		fmt.Println("This is done automatically after 'rm' and 'passwd'.")
		fmt.Println()
		fmt.Println("Does not require a passphrase.")
	case "keyring":
		fmt.Println("lrzlock keyring <save|delete|status>")
		fmt.Println()
		fmt.Println("Manages the vault passphrase in the OS keyring.")
		fmt.Println("  save     Verify and store the passphrase")
		fmt.Println("  delete   Remove the stored passphrase")
		fmt.Println("  status   Report whether a passphrase is stored")
	case "completion":
		fmt.Println("lrzlock completion <bash|zsh|fish>")
		fmt.Println()
		fmt.Println("Outputs shell completion script for the specified shell.")
		fmt.Println()
		fmt.Println("Setup:")
		fmt.Println("  # Bash - add to ~/.bashrc")
		fmt.Println("  eval \"$(lrzlock completion bash)\"")
		fmt.Println()
		fmt.Println("  # Zsh - add to ~/.zshrc")
		fmt.Println("  eval \"$(lrzlock completion zsh)\"")
		fmt.Println()
		fmt.Println("  # Fish - add to ~/.config/fish/config.fish")
		fmt.Println("  lrzlock completion fish | source")
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
	}
}
