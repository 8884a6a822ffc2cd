package cli

import "fmt"

func Run(args []string) error {
	if len(args) == 0 {
		printRootUsage()
		return nil
	}

	switch args[0] {
	case "run":
		return runHarvest(args[1:])
	case "doctor":
		return runDoctor(args[1:])
	case "monitor":
		return runMonitor(args[1:])
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		printRootUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printRootUsage() {
	fmt.Println("sra-harvest: SRA dataset acquisition with FastQC gating")
	fmt.Println()
	fmt.Println("Quick Start:")
	fmt.Println("  sra-harvest doctor")
	fmt.Println("  sra-harvest run --term \"mouse chip-seq\" --target 5")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run      search the SRA catalog, download runs and keep the clean ones")
	fmt.Println("  doctor   run dependency and filesystem preflight checks")
	fmt.Println("  monitor  interactive harvest with a live progress dashboard")
	fmt.Println()
	fmt.Println("Notes:")
	fmt.Println("  - Use --json on commands for machine-readable output")
	fmt.Println("  - NCBI_EMAIL and NCBI_API_KEY are read when flags are not set;")
	fmt.Println("    an API key raises the catalog rate limit")
}
