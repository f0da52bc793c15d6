// wordctl manages the word-pair bank file used by the game server.
//
// Usage:
//
//	wordctl -file words.json list
//	wordctl -file words.json add -category food -civilian apple -undercover pear -similarity 0.8 -difficulty easy
//	wordctl -file words.json stats
//	wordctl -file words.json validate
//	wordctl -file words.json export -out backup.json
package main

import (
	"flag"
	"fmt"
	"os"

	"example.com/undercover/internal/words"
)

func main() {
	file := flag.String("file", "words.json", "path to the word bank file")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	var err error
	switch args[0] {
	case "list":
		err = runList(*file)
	case "add":
		err = runAdd(*file, args[1:])
	case "stats":
		err = runStats(*file)
	case "validate":
		err = runValidate(*file)
	case "export":
		err = runExport(*file, args[1:])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "wordctl:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: wordctl [-file path] <list|add|stats|validate|export> [args]")
}

// open falls back to the built-in set when the file does not exist, so a
// fresh bank can be seeded with `add`.
func open(path string) (*words.Bank, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return words.Default(), nil
	}
	return words.FromFile(path)
}

func runList(path string) error {
	bank, err := open(path)
	if err != nil {
		return err
	}
	for _, cat := range bank.Categories() {
		fmt.Printf("%s:\n", cat)
		for _, p := range bank.CategoryWords(cat) {
			fmt.Printf("  %-20s / %-20s similarity=%.2f difficulty=%s\n",
				p.CivilianWord, p.UndercoverWord, p.Similarity, p.Difficulty)
		}
	}
	return nil
}

func runAdd(path string, args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	category := fs.String("category", "", "category name")
	civilian := fs.String("civilian", "", "civilian word")
	undercover := fs.String("undercover", "", "undercover word")
	similarity := fs.Float64("similarity", 0.5, "similarity between the words, 0..1")
	difficulty := fs.String("difficulty", "medium", "easy|medium|hard")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *category == "" || *civilian == "" || *undercover == "" {
		return fmt.Errorf("add requires -category, -civilian and -undercover")
	}

	bank, err := open(path)
	if err != nil {
		return err
	}
	bank.AddPair(*category, words.Pair{
		CivilianWord:   *civilian,
		UndercoverWord: *undercover,
		Similarity:     *similarity,
		Difficulty:     words.ParseDifficulty(*difficulty),
	})
	if err := bank.SaveToFile(path); err != nil {
		return err
	}
	fmt.Printf("added %s/%s to %s\n", *civilian, *undercover, *category)
	return nil
}

func runStats(path string) error {
	bank, err := open(path)
	if err != nil {
		return err
	}
	st := bank.Stats()
	fmt.Printf("pairs: %d, categories: %d\n", st.TotalPairs, st.TotalCategories)
	for _, cat := range bank.Categories() {
		fmt.Printf("  %-16s %d\n", cat, st.ByCategory[cat])
	}
	for diff, n := range st.ByDifficulty {
		fmt.Printf("  %-16s %d\n", diff, n)
	}
	return nil
}

func runValidate(path string) error {
	bank, err := open(path)
	if err != nil {
		return err
	}
	problems := bank.Validate()
	if len(problems) == 0 {
		fmt.Println("ok")
		return nil
	}
	for _, p := range problems {
		fmt.Println(p)
	}
	return fmt.Errorf("%d problem(s) found", len(problems))
}

func runExport(path string, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	out := fs.String("out", "", "destination file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		return fmt.Errorf("export requires -out")
	}

	bank, err := open(path)
	if err != nil {
		return err
	}
	if err := bank.SaveToFile(*out); err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", *out)
	return nil
}
