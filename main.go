package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron"

	"github.com/bcaldwell/beanbudget/pkg/budget"
	"github.com/bcaldwell/beanbudget/pkg/config"
)

const configEnvVar = "BEANBUDGET_CONFIG"

type Runner interface {
	Run() error
}

var runner Runner

func main() {
	singleRun := flag.Bool("single-run", false, "run export or import once (disable cron)")
	configFile := flag.String("config", "./budget.yml", "configuration file")
	secretsFile := flag.String("secrets", "./secrets.json", "secrets file")
	validate := flag.Bool("validate", true, "check the budget invariant for every month")
	workers := flag.Int("workers", runtime.GOMAXPROCS(0), "number of currencies evaluated in parallel")
	help := flag.Bool("help", false, "show command help")

	flag.Parse()

	if *help {
		usage()
		return
	}

	conf, secrets, err := config.Load(configEnvVar, *configFile, *secretsFile)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	layout, err := conf.Layout()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	if flag.NArg() == 0 {
		fmt.Println("No task passed in")
		usage()
		os.Exit(1)
	}

	app := &app{
		config:  conf,
		secrets: secrets,
		layout:  layout,
		options: []budget.Option{budget.WithValidation(*validate), budget.WithWorkers(*workers)},
	}

	scheduled := false
	args := flag.Args()[1:]
	switch flag.Arg(0) {
	case "show":
		runner = showRunner{app: app, args: args}
	case "assign":
		runner = assignRunner{app: app, args: args}
	case "hold":
		runner = holdRunner{app: app, args: args}
	case "transactions":
		runner = transactionsRunner{app: app, args: args}
	case "export":
		runner = newExportRunner(app)
		scheduled = true
	case "import-ynab":
		runner = importYnabRunner{app: app}
		scheduled = true
	case "ynab-categories":
		runner = ynabCategoriesRunner{app: app}
	default:
		fmt.Printf("Unknown task %s\n", flag.Arg(0))
		usage()
		os.Exit(1)
	}

	if !scheduled || *singleRun {
		if err := runner.Run(); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		return
	}

	run()

	c := cron.New()
	if err := c.AddFunc(conf.Export.UpdateFrequency, run); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	c.Start()

	select {}
}

func run() {
	fmt.Println(time.Now().Format(time.RFC850))
	err := runner.Run()
	if err != nil {
		fmt.Println(err)
	}
}

func usage() {
	fmt.Println("envelope budget over a beancount ledger")
	fmt.Println("beanbudget [options] task")
	fmt.Println()
	fmt.Println("tasks:")
	fmt.Println("  show [YYYY-MM]                                print the budget for a month")
	fmt.Println("  assign CATEGORY YYYY-MM AMOUNT [CURRENCY]     assign money to a category")
	fmt.Println("  hold YYYY-MM AMOUNT [CURRENCY]                keep money for the next month")
	fmt.Println("  transactions YYYY-MM                          print how transactions were classified")
	fmt.Println("  export                                        write the budget to postgres and influx")
	fmt.Println("  import-ynab                                   copy assignments from a YNAB budget")
	fmt.Println("  ynab-categories                               list YNAB categories without a budget category")
	fmt.Println()
	flag.PrintDefaults()
}
