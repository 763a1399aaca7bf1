package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/go-i2p/common/base64"
	"github.com/go-i2p/go-i2cpd/lib/config"
	"github.com/go-i2p/go-i2cpd/lib/netdb"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func configCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := yaml.Marshal(config.FromViper(viper.GetViper()))
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func addressBookCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "addressbook",
		Short: "Manage the hostname to destination address book",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <hostname> <base64 destination>",
			Short: "Add or replace a hostname",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				dest, err := base64.DecodeString(args[1])
				if err != nil {
					return fmt.Errorf("invalid base64 destination: %w", err)
				}
				return withAddressBook(func(book *netdb.AddressBook) error {
					return book.Add(args[0], dest)
				})
			},
		},
		&cobra.Command{
			Use:   "remove <hostname>",
			Short: "Remove a hostname",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withAddressBook(func(book *netdb.AddressBook) error {
					return book.Remove(args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List known hostnames",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withAddressBook(func(book *netdb.AddressBook) error {
					entries, err := book.List()
					if err != nil {
						return err
					}
					w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
					for _, e := range entries {
						fmt.Fprintf(w, "%s\t%s\t%s\n", e.Name, netdb.EncodeB32Address(e.Hash),
							time.UnixMilli(e.Added).UTC().Format(time.RFC3339))
					}
					return w.Flush()
				})
			},
		},
	)
	return cmd
}

func withAddressBook(fn func(*netdb.AddressBook) error) error {
	book, err := openAddressBook(config.FromViper(viper.GetViper()).NetDB.AddressBookPath)
	if err != nil {
		return err
	}
	defer book.Close()
	return fn(book)
}
