package main

import (
	"strconv"
	"time"

	bc "github.com/hllywluis/powchain/blockchain"

	"github.com/pterm/pterm"
)

const maxPayloadWidth = 32

func renderChain(blocks []*bc.Block) (string, error) {
	data := pterm.TableData{
		{"Height", "Hash", "PrevHash", "Timestamp", "Nonce", "Payload"},
	}
	for i, b := range blocks {
		data = append(data, []string{
			strconv.Itoa(i),
			b.Hash(),
			shorten(b.PrevHash(), 16),
			time.Unix(0, b.Timestamp()*int64(time.Millisecond)).UTC().Format(time.RFC3339),
			strconv.FormatUint(b.Nonce(), 10),
			shorten(strconv.Quote(string(b.Payload())), maxPayloadWidth),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
