package main

import (
	"fmt"

	"github.com/transaction/transbase-go"
	"github.com/transaction/transbase-go/sqlengine"
)

func main() {
	tb, err := transbase.Connect(transbase.Config{URL: ":memory:", User: "tbadmin"}, sqlengine.New())
	if err != nil {
		panic(err)
	}
	defer tb.Close()

	for _, q := range []string{
		"CREATE TABLE users (id INTEGER, name VARCHAR(100), avatar BLOB)",
		"INSERT INTO users VALUES (1, 'Admin', NULL)",
	} {
		if _, err = tb.Query(q); err != nil {
			panic(err)
		}
	}
	if _, err = tb.Query("INSERT INTO users VALUES (?, ?, ?)", 2, "Guest", []byte{0xca, 0xfe}); err != nil {
		panic(err)
	}

	res, err := tb.Query("SELECT id, name, avatar FROM users WHERE id >= :min", map[string]any{"min": 1})
	if err != nil {
		panic(err)
	}

	for _, col := range res.ResultSet.Columns() {
		fmt.Printf("| %s %s ", col.Name, col.TypeName())
	}
	fmt.Println("|")

	for i := 0; i < 40; i++ {
		fmt.Printf("=")
	}
	fmt.Println()

	for {
		row, err := res.ResultSet.Next()
		if err != nil {
			panic(err)
		}
		if row == nil {
			break
		}

		fmt.Printf("|")
		for _, col := range res.ResultSet.Columns() {
			fmt.Printf(" %v | ", row[col.Name])
		}
		fmt.Println()
	}
}
