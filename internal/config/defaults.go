package config

const (
	defaultStateDir              = "~/.local/share/famforge"
	defaultLogDir                = "~/.local/share/famforge/logs"
	defaultAlignedDirName        = "Pfam-M"
	defaultClusterDirName        = "clusters"
	defaultNamesFileName         = "corresponding_clusters.txt"
	defaultPfamRC                = "/nfs/production/xfam/pfam/pfamrc"
	defaultPfamScripts           = "/nfs/production/xfam/pfam/software/Pfam/PfamScripts/make"
	defaultCuratorScripts        = "/homes/agb/Scripts"
	defaultPQCOverlap            = "/nfs/production/xfam/pfam/software/bin/pqc-overlap-rdb.pl"
	defaultFinishedMarker        = "Resource usage summary:"
	defaultExitCodePattern       = `^Exited with exit code`
	defaultNoSpacePattern        = `cannot create temp file for here-document: No space left on device`
	defaultMemoryLimitExitCode   = 25
	defaultMaxAttempts           = 2
	defaultPollInterval          = 5
	defaultMaxPollInterval       = 300
	defaultIdleWait              = 2
	defaultConversionAttempts    = 5
	defaultConversionBackoff     = 2
	defaultStageTimeoutHours     = 72
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogRetentionDays      = 30
	defaultNotifyTimeout         = 10
	stockholmTerminator          = "//"
	defaultRedundancyIdentityPct = "80"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Environment: Environment{
			RequiredFiles: []string{defaultPfamRC},
			GroupWritable: true,
		},
		Tools: Tools{
			CreateAlignment: Tool{
				Command: "perl",
				Args:    []string{defaultPfamScripts + "/create_alignment.pl", "-fasta", "{cluster}", "-m"},
				Stdout:  "{family}",
			},
			ToStockholm: Tool{
				Command: "belvu",
				Args:    []string{"-o", "mul", "{family}"},
				Stdout:  "{seed}",
				Exclude: []string{stockholmTerminator},
			},
			Liftover: Tool{
				Command: "perl",
				Args:    []string{defaultPfamScripts + "/liftover_alignment.pl", "-align", "{seed}"},
			},
			RedundancyFilter: Tool{
				Command: "belvu",
				Args:    []string{"-n", defaultRedundancyIdentityPct, "-o", "mul", "SEED4"},
				Stdout:  "SEED3",
				Exclude: []string{stockholmTerminator},
			},
			Trim: Tool{
				Command: "perl",
				Args:    []string{defaultPfamScripts + "/trim_alignment.pl", "-in", "SEED3", "-out", "SEED2"},
			},
			PartialFilter: Tool{
				Command: "belvu",
				Args:    []string{"-P", "-o", "mul", "SEED2"},
				Stdout:  "SEED",
				Exclude: []string{stockholmTerminator},
			},
			Build: Tool{
				Command: "pfbuild",
				Args:    []string{"-withpfmake", "SEED"},
			},
		},
		Stages: Stages{
			Liftover: Stage{
				LogFile:             "liftover.log",
				Artifact:            "{seed}.phmmer",
				Scratch:             []string{"*.fa", "*.log", "*.aln", "*.hmm", "hmmsearch.tbl"},
				FinishedMarker:      defaultFinishedMarker,
				ErrorPatterns:       []string{defaultExitCodePattern},
				MemoryLimitExitCode: defaultMemoryLimitExitCode,
			},
			Build: Stage{
				LogFile:             "pfbuild.log",
				Artifact:            "PFAMOUT",
				Scratch:             []string{"pfbuild.log"},
				FinishedMarker:      defaultFinishedMarker,
				ErrorPatterns:       []string{defaultExitCodePattern, defaultNoSpacePattern},
				MemoryLimitExitCode: defaultMemoryLimitExitCode,
			},
		},
		Workflow: Workflow{
			MaxAttempts:        defaultMaxAttempts,
			PollInterval:       defaultPollInterval,
			MaxPollInterval:    defaultMaxPollInterval,
			IdleWait:           defaultIdleWait,
			ConversionAttempts: defaultConversionAttempts,
			ConversionBackoff:  defaultConversionBackoff,
			StageTimeoutHours:  defaultStageTimeoutHours,
			MoveCompleted:      true,
			WatchLogs:          true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Run:            true,
			Errors:         true,
		},
	}
}

// DefaultPostProcess returns the post-processing steps used when the config
// file does not list any. TOML array tables append to pre-filled slices, so
// these are applied during normalization rather than in Default.
func DefaultPostProcess() []PostProcessStep {
	return []PostProcessStep{
		{Name: "add_pdb_ref", Command: "perl", Args: []string{defaultCuratorScripts + "/add_pdb_ref.pl"}},
		{Name: "swissprot", Command: "perl", Args: []string{defaultPfamScripts + "/swissprot.pl", "-num", "10"}},
		{Name: "species_summary", Command: "perl", Args: []string{defaultCuratorScripts + "/species_summary.pl", "."}},
		{Name: "duffem", Command: "perl", Args: []string{defaultCuratorScripts + "/duffem.pl", "-overwrite", "-duf", "."}},
		{Name: "next_duf", Command: "perl", Args: []string{defaultPfamScripts + "/nextDUF.pl"}},
		{Name: "pqc_overlap", Command: defaultPQCOverlap, Args: []string{"."}},
	}
}
