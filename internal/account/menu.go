package account

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// Menu is an interactive account manager: list, create, delete, toggle
// active, toggle prefer-encrypt. It reads commands line by line so it
// can be driven by tests as well as a terminal.
type Menu struct {
	mgr *Manager
	in  *bufio.Reader
	out io.Writer

	// Passphrase prompts for a passphrase. Defaults to a hidden
	// terminal prompt when stdin is a terminal, a plain line read
	// otherwise.
	Passphrase func(prompt string) ([]byte, error)
}

func NewMenu(mgr *Manager, in io.Reader, out io.Writer) *Menu {
	m := &Menu{
		mgr: mgr,
		in:  bufio.NewReader(in),
		out: out,
	}
	m.Passphrase = m.defaultPassphrase
	return m
}

// Run drives the menu until quit or EOF.
func (m *Menu) Run() error {
	for {
		accts, err := m.mgr.List()
		if err != nil {
			return err
		}
		m.render(accts)
		fmt.Fprint(m.out, "command (c)reate (d)elete (a)ctive (p)refer-encrypt (q)uit: ")

		line, err := m.in.ReadString('\n')
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		cmd := strings.TrimSpace(line)
		if cmd == "" {
			continue
		}

		switch cmd[0] {
		case 'q':
			return nil
		case 'c':
			err = m.create()
		case 'd':
			err = m.withSelected(accts, cmd, func(a *Account) error {
				return m.mgr.Delete(a.Address)
			})
		case 'a':
			err = m.withSelected(accts, cmd, func(a *Account) error {
				_, terr := m.mgr.SetEnabled(a.Address, !a.Enabled)
				return terr
			})
		case 'p':
			err = m.withSelected(accts, cmd, func(a *Account) error {
				_, terr := m.mgr.SetPreferEncrypt(a.Address, !a.PreferEncrypt)
				return terr
			})
		default:
			fmt.Fprintf(m.out, "unknown command %q\n", cmd)
		}
		if err != nil {
			fmt.Fprintf(m.out, "error: %v\n", err)
		}
	}
}

func (m *Menu) render(accts []*Account) {
	if len(accts) == 0 {
		fmt.Fprintln(m.out, "Accounts: (none)")
		return
	}
	fmt.Fprintf(m.out, "Accounts (%d):\n", len(accts))
	for i, a := range accts {
		active := " "
		if a.Enabled {
			active = "x"
		}
		prefer := " "
		if a.PreferEncrypt {
			prefer = "x"
		}
		fmt.Fprintf(m.out, "  %2d  [%s] active  [%s] prefer-encrypt  %-30s %s\n",
			i+1, active, prefer, a.Address, shortKeyID(a.PublicKey))
	}
}

func (m *Menu) create() error {
	fmt.Fprint(m.out, "address: ")
	line, err := m.in.ReadString('\n')
	if err != nil {
		return err
	}
	address := strings.TrimSpace(line)

	pass, err := m.Passphrase("passphrase: ")
	if err != nil {
		return err
	}
	again, err := m.Passphrase("repeat passphrase: ")
	if err != nil {
		return err
	}
	if string(pass) != string(again) {
		return fmt.Errorf("passphrases do not match")
	}

	acct, err := m.mgr.Create(address, pass)
	if err != nil {
		return err
	}
	fmt.Fprintf(m.out, "created %s (%s)\n", acct.Address, shortKeyID(acct.PublicKey))
	return nil
}

// withSelected resolves "d 2"-style commands to an account. A bare
// command with exactly one account selects it implicitly.
func (m *Menu) withSelected(accts []*Account, cmd string, fn func(*Account) error) error {
	fields := strings.Fields(cmd)
	switch {
	case len(fields) >= 2:
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 1 || n > len(accts) {
			return fmt.Errorf("no account %q", fields[1])
		}
		return fn(accts[n-1])
	case len(accts) == 1:
		return fn(accts[0])
	default:
		return fmt.Errorf("usage: %c <number>", cmd[0])
	}
}

func (m *Menu) defaultPassphrase(prompt string) ([]byte, error) {
	fmt.Fprint(m.out, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		pass, err := term.ReadPassword(fd)
		fmt.Fprintln(m.out)
		return pass, err
	}
	line, err := m.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, err
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}

func shortKeyID(pub []byte) string {
	if len(pub) < 4 {
		return "????????"
	}
	return hex.EncodeToString(pub[:4])
}
