// Command essaybinder はエッセイカタログAPIサーバーと再同期ワーカーを起動する。
//
//	essaybinder [serve|worker|migrate|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/essaybinder/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "essaybinder: %v\n", err)
		os.Exit(1)
	}
}
