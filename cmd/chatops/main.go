// Command chatops runs the seller-account chat automation CLI: the
// subcommand tree described in the system design's external interfaces
// (publish/polish/price/delist/relist/analytics/accounts/messages/module/
// quote/doctor), each emitting exactly one JSON document on stdout.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/G3niusYukki/xianyu-chatops/cmd/chatops/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		enc := json.NewEncoder(os.Stdout)
		if encErr := enc.Encode(map[string]string{"error": err.Error()}); encErr != nil {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
