package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var adsCmd = &cobra.Command{
	Use:     "ads",
	Short:   "Register, edit and list classified ads",
	GroupID: "ads",
}

var adsRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a new ad",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		owner, _ := cmd.Flags().GetString("owner")
		res, err := marketClient.RegisterAd(cmd.Context(), id, owner)
		if err != nil {
			return fmt.Errorf("registering ad: %w", err)
		}
		return printCommandResult(cmd.OutOrStdout(), "Registered", res)
	},
}

var adsTitleCmd = &cobra.Command{
	Use:   "title <id> <title>",
	Short: "Change an ad's title",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := marketClient.ChangeTitle(cmd.Context(), args[0], args[1])
		if err != nil {
			return fmt.Errorf("changing title: %w", err)
		}
		return printCommandResult(cmd.OutOrStdout(), "Retitled", res)
	},
}

var adsTextCmd = &cobra.Command{
	Use:   "text <id> <text>",
	Short: "Update an ad's text",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := marketClient.UpdateText(cmd.Context(), args[0], args[1])
		if err != nil {
			return fmt.Errorf("updating text: %w", err)
		}
		return printCommandResult(cmd.OutOrStdout(), "Updated", res)
	},
}

var adsPriceCmd = &cobra.Command{
	Use:   "price <id> <amount>",
	Short: "Change an ad's price",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		price, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid price %q: %w", args[1], err)
		}
		currency, _ := cmd.Flags().GetString("currency")
		res, err := marketClient.ChangePrice(cmd.Context(), args[0], price, currency)
		if err != nil {
			return fmt.Errorf("changing price: %w", err)
		}
		return printCommandResult(cmd.OutOrStdout(), "Repriced", res)
	},
}

var adsPublishCmd = &cobra.Command{
	Use:   "publish <id>",
	Short: "Publish an ad",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		approvedBy, _ := cmd.Flags().GetString("approved-by")
		res, err := marketClient.PublishAd(cmd.Context(), args[0], approvedBy)
		if err != nil {
			return fmt.Errorf("publishing ad: %w", err)
		}
		return printCommandResult(cmd.OutOrStdout(), "Published", res)
	},
}

var adsSellCmd = &cobra.Command{
	Use:   "sell <id>",
	Short: "Mark an ad as sold",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := marketClient.MarkAsSold(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("marking ad as sold: %w", err)
		}
		return printCommandResult(cmd.OutOrStdout(), "Sold", res)
	},
}

var adsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available ads",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		ads, err := marketClient.ListAvailableAds(cmd.Context(), all)
		if err != nil {
			return fmt.Errorf("listing ads: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), ads)
		}
		printAvailableAdTable(cmd.OutOrStdout(), ads)
		return nil
	},
}

var adsOwnerCmd = &cobra.Command{
	Use:   "owner <owner-id>",
	Short: "List every ad registered by an owner",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ads, err := marketClient.ListOwnerAds(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("listing owner ads: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), ads)
		}
		printOwnerAdTable(cmd.OutOrStdout(), ads)
		return nil
	},
}

func init() {
	adsRegisterCmd.Flags().String("id", "", "ad ID (generated when empty)")
	adsRegisterCmd.Flags().String("owner", "", "owner ID (required)")
	_ = adsRegisterCmd.MarkFlagRequired("owner")

	adsPriceCmd.Flags().String("currency", "EUR", "ISO currency code")

	adsPublishCmd.Flags().String("approved-by", "", "ID of the approving moderator")

	adsListCmd.Flags().Bool("all", false, "include drafts and sold ads")

	adsCmd.AddCommand(
		adsRegisterCmd,
		adsTitleCmd,
		adsTextCmd,
		adsPriceCmd,
		adsPublishCmd,
		adsSellCmd,
		adsListCmd,
		adsOwnerCmd,
	)
}
