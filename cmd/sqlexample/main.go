package main

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/transaction/transbase-go/sqlengine"
)

type user struct {
	name     string
	age      sql.NullInt64
	avatar   []byte
	lastSeen sql.NullString
}

func main() {
	db, err := sql.Open("transbase", "url=:memory: user=tbadmin password=''")
	if err != nil {
		panic(err)
	}
	defer db.Close()
	// every connection opens its own in-memory database
	db.SetMaxOpenConns(1)

	_, err = db.Exec("CREATE TABLE users (name VARCHAR(100), age INTEGER, avatar BLOB, last_seen TIMESTAMP)")
	if err != nil {
		panic(err)
	}

	seen := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	_, err = db.Exec("INSERT INTO users VALUES (?, ?, ?, ?)", "Terry", 45, []byte{0xca, 0xfe}, seen)
	if err != nil {
		panic(err)
	}

	// NULL through sql.Null* values and a nil blob
	_, err = db.Exec("INSERT INTO users VALUES (:name, :age, :avatar, :seen)",
		sql.Named("name", "Anette"), sql.Named("age", sql.NullInt64{}),
		sql.Named("avatar", nil), sql.Named("seen", sql.NullString{}))
	if err != nil {
		panic(err)
	}

	tx, err := db.Begin()
	if err != nil {
		panic(err)
	}
	if _, err = tx.Exec("UPDATE users SET age = age + 1 WHERE age IS NOT NULL"); err != nil {
		panic(err)
	}
	if err = tx.Commit(); err != nil {
		panic(err)
	}

	rows, err := db.Query("SELECT name, age, avatar, last_seen FROM users ORDER BY name")
	if err != nil {
		panic(err)
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		panic(err)
	}
	for _, ct := range types {
		fmt.Printf("| %s %s ", ct.Name(), ct.DatabaseTypeName())
	}
	fmt.Println("|")

	for rows.Next() {
		u := user{}
		if err := rows.Scan(&u.name, &u.age, &u.avatar, &u.lastSeen); err != nil {
			panic(err)
		}

		age := "unknown"
		if u.age.Valid {
			age = fmt.Sprint(u.age.Int64)
		}
		avatar := "none"
		if u.avatar != nil {
			avatar = fmt.Sprintf("%d bytes %x", len(u.avatar), u.avatar)
		}
		fmt.Printf("Name: %s, Age: %s, Avatar: %s, Last seen: %s\n", u.name, age, avatar, u.lastSeen.String)
	}

	if err = rows.Err(); err != nil {
		panic(err)
	}
}
