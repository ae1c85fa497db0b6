package main

import (
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/transaction/transbase-go"
	"github.com/transaction/transbase-go/sqlengine"
)

var inserts = 0
var lastId = 0
var firstId = 0

func doInsert(tb *transbase.Transbase) {
	source := rand.NewSource(time.Now().UnixNano())
	r := rand.New(source)
	for i := 0; i < inserts; i++ {
		lastId = r.Intn(inserts * 10)
		if i == 0 {
			firstId = lastId
		}
		if _, err := tb.Query("INSERT INTO users VALUES (?, ?)", lastId, i); err != nil {
			panic(err)
		}
	}
}

func doSelect(tb *transbase.Transbase) {
	check := func(id, inc int) {
		res, err := tb.Query("SELECT id, inc FROM users WHERE id = ? ORDER BY inc DESC", id)
		if err != nil {
			panic(err)
		}
		row, err := res.ResultSet.Next()
		if err != nil {
			panic(err)
		}
		if row == nil {
			panic("Expected a row")
		}
		if int(row["inc"].(int64)) < inc {
			panic(fmt.Sprintf("Bad row, got: %v", row["inc"]))
		}
	}

	check(lastId, inserts-1)
	check(firstId, 0)
}

func doFetch(tb *transbase.Transbase) {
	res, err := tb.Query("SELECT id, inc FROM users")
	if err != nil {
		panic(err)
	}
	rows, err := res.ResultSet.ToArray()
	if err != nil {
		panic(err)
	}
	if len(rows) != inserts {
		panic(fmt.Sprintf("Expected %d rows, got %d", inserts, len(rows)))
	}
}

func perf(name string, tb *transbase.Transbase, cb func(tb *transbase.Transbase)) {
	start := time.Now()
	fmt.Println("Starting", name)
	cb(tb)
	fmt.Printf("Finished %s: %f seconds\n", name, time.Since(start).Seconds())

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	fmt.Printf("Alloc = %d MiB\n\n", m.Alloc/1024/1024)
}

func main() {
	url := ":memory:"
	typeCast := true
	inserts = 1000
	for i, arg := range os.Args {
		if arg == "--no-typecast" {
			typeCast = false
		}

		if arg == "--inserts" && i+1 < len(os.Args) {
			inserts, _ = strconv.Atoi(os.Args[i+1])
		}

		if arg == "--url" && i+1 < len(os.Args) {
			url = os.Args[i+1]
		}
	}

	tb, err := transbase.Connect(transbase.Config{URL: url, User: "tbadmin", TypeCast: &typeCast},
		sqlengine.New(sqlengine.WithLogger(lgr.NoOp)), transbase.WithLogger(lgr.NoOp))
	if err != nil {
		panic(err)
	}
	defer tb.Close()

	if _, err = tb.Query("CREATE TABLE users (id INTEGER, inc INTEGER)"); err != nil {
		panic(err)
	}

	fmt.Printf("Inserting %d rows\n", inserts)

	perf("INSERT", tb, doInsert)
	if typeCast {
		perf("SELECT", tb, doSelect)
	}
	perf("FETCH", tb, doFetch)
}
