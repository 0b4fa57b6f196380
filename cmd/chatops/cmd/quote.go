package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/G3niusYukki/xianyu-chatops/pkg/quote"
)

var (
	quoteOrigin      string
	quoteDestination string
	quoteWeightKg    float64
	quoteVolumeCC    float64
	quoteService     string
	quoteCourier     string
)

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Resolve a shipping quote for a route and weight",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if quoteOrigin == "" || quoteDestination == "" {
			return fmt.Errorf("--origin and --destination are required")
		}

		req := quote.Request{
			Origin:       quoteOrigin,
			Destination:  quoteDestination,
			WeightKg:     quoteWeightKg,
			VolumeCC:     quoteVolumeCC,
			ServiceLevel: quoteService,
			Courier:      quoteCourier,
		}

		result, err := a.quote.GetQuote(context.Background(), req)
		if err != nil {
			return fmt.Errorf("get quote: %w", err)
		}
		return emitJSON(result)
	},
}

func init() {
	quoteCmd.Flags().StringVar(&quoteOrigin, "origin", "", "origin province/city")
	quoteCmd.Flags().StringVar(&quoteDestination, "destination", "", "destination province/city")
	quoteCmd.Flags().Float64Var(&quoteWeightKg, "weight-kg", 1, "package weight in kilograms")
	quoteCmd.Flags().Float64Var(&quoteVolumeCC, "volume-cc", 0, "package volume in cubic centimeters")
	quoteCmd.Flags().StringVar(&quoteService, "service-level", "standard", "standard | express | urgent")
	quoteCmd.Flags().StringVar(&quoteCourier, "courier", "auto", "courier name, or auto")
}
