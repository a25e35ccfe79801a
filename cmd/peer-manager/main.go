// Command peer-manager is the thin CLI wrapper spec.md section 6.4
// documents: it opens an existing wallet's AuthPeers metadata account
// and lets an operator inspect or extend the authorized-peer list.
// Nothing here belongs to the core; it is a flag-parsing frontend over
// the wallet and peers packages.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"github.com/coredge/hdvault/internal/account"
	"github.com/coredge/hdvault/peers"
	"github.com/coredge/hdvault/wallet"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("peer-manager", flag.ContinueOnError)
	datadir := fs.String("datadir", "", "wallet data directory")
	walletID := fs.String("wallet", "", "base58 wallet id to open")
	server := fs.Bool("server", false, "run in server mode")
	client := fs.Bool("client", false, "run in client mode")
	showMyKey := fs.Bool("show-my-key", false, "print this wallet's own public key")
	showKeys := fs.Bool("show-keys", false, "print every known peer name and public key")
	addKey := fs.Bool("add-key", false, "add a peer: --add-key <hexpub> <name> [name...]")

	if err := fs.Parse(args); err != nil {
		return -1
	}

	if *server && *client {
		fmt.Fprintln(os.Stderr, "peer-manager: --server and --client are mutually exclusive")
		return -1
	}
	if *datadir == "" || *walletID == "" {
		fmt.Fprintln(os.Stderr, "peer-manager: --datadir and --wallet are required")
		return -1
	}

	var addKeyArgs []string
	rest := fs.Args()
	if *addKey {
		if len(rest) < 2 {
			fmt.Fprintln(os.Stderr, "peer-manager: --add-key requires <hexpub> <name> [name...]")
			return -1
		}
		addKeyArgs = rest
	}

	w, err := wallet.Load(*datadir, *walletID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "peer-manager: %v\n", err)
		return -1
	}

	ap := peers.New(w.MetaAccounts[account.AuthPeers])
	if err := ap.LoadFromAccount(); err != nil {
		fmt.Fprintf(os.Stderr, "peer-manager: %v\n", err)
		return -1
	}

	if *showMyKey {
		printOwnKey(ap)
	}
	if *showKeys {
		printKnownPeers(ap)
	}
	if *addKey {
		pub, err := hex.DecodeString(addKeyArgs[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "peer-manager: invalid hex public key: %v\n", err)
			return -1
		}
		if err := ap.AddPeer(pub, "", addKeyArgs[1:]...); err != nil {
			fmt.Fprintf(os.Stderr, "peer-manager: %v\n", err)
			return -1
		}
		if err := w.SaveMetaAccount(account.AuthPeers); err != nil {
			fmt.Fprintf(os.Stderr, "peer-manager: %v\n", err)
			return -1
		}
	}

	return 0
}

func printOwnKey(ap *peers.AuthorizedPeers) {
	own := ap.OwnPublicKey()
	if own == nil {
		fmt.Println("(no own key registered)")
		return
	}
	fmt.Println(hex.EncodeToString(own))
}

func printKnownPeers(ap *peers.AuthorizedPeers) {
	for name, pub := range ap.NameToPubKey() {
		fmt.Printf("%s %s\n", hex.EncodeToString(pub), name)
	}
}
