package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"lettera/internal/account"
	"lettera/internal/config"
	"lettera/internal/hcache"
	"lettera/internal/store"
)

func openCache(cfg *config.Config) (*hcache.Cache, error) {
	return hcache.Open(cfg.Cache.Backend, cfg.Cache.Path, cfg.Cache.Compression)
}

func parseUID(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid uid %q", s)
	}
	return uint32(n), nil
}

func runImport(cfg *config.Config, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: import <folder> <uid> <file>")
	}
	uid, err := parseUID(args[1])
	if err != nil {
		return err
	}

	f, err := os.Open(args[2])
	if err != nil {
		return err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return err
	}

	entry, err := hcache.ParseEntry(f)
	if err != nil {
		return err
	}
	entry.Size = fi.Size()

	c, err := openCache(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Put(args[0], uid, entry); err != nil {
		return err
	}
	fmt.Printf("cached %s uid %d (%s)\n", args[0], uid, entry.MessageID)
	return nil
}

func printEntry(e *hcache.Entry) {
	fmt.Printf("Message-ID: %s\n", e.MessageID)
	fmt.Printf("Subject:    %s\n", e.Subject)
	fmt.Printf("From:       %s\n", e.From)
	fmt.Printf("To:         %s\n", strings.Join(e.To, ", "))
	fmt.Printf("Date:       %s\n", e.Date)
	fmt.Printf("Size:       %d\n", e.Size)
	fmt.Printf("Read: %v  Answered: %v  Flagged: %v\n", e.Read, e.Answered, e.Flagged)
}

func runGet(cfg *config.Config, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: get <folder> <uid>")
	}
	uid, err := parseUID(args[1])
	if err != nil {
		return err
	}

	c, err := openCache(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	entry, ok := c.Get(args[0], uid)
	if !ok {
		return fmt.Errorf("no cached entry for %s uid %d", args[0], uid)
	}
	printEntry(entry)
	return nil
}

func runDel(cfg *config.Config, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: del <folder> <uid>")
	}
	uid, err := parseUID(args[1])
	if err != nil {
		return err
	}

	c, err := openCache(cfg)
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Delete(args[0], uid)
}

func runScan(cfg *config.Config, args []string) error {
	c, err := openCache(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	var prefix string
	if len(args) > 0 {
		prefix = args[0] + string(rune(hcache.KeySep))
	}

	count := 0
	err = c.Walk(func(key string, e *hcache.Entry) error {
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			return nil
		}
		count++
		display := strings.ReplaceAll(key, string(rune(hcache.KeySep)), "/")
		fmt.Printf("%-40s %-30s %s\n", display, e.From, e.Subject)
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Printf("%d entries\n", count)
	return nil
}

func runVersion(cfg *config.Config) error {
	v, err := store.Version(cfg.Cache.Backend)
	if err != nil {
		return err
	}
	fmt.Printf("%s backend: %s\n", cfg.Cache.Backend, v)
	return nil
}

func runAccounts(cfg *config.Config) error {
	mgr, err := account.Open(cfg.Accounts.Backend, cfg.Accounts.Path)
	if err != nil {
		return err
	}
	defer mgr.Close()

	menu := account.NewMenu(mgr, os.Stdin, os.Stdout)
	return menu.Run()
}
