package types

import "fmt"

// Validate methods give each typed argument record a chance to reject
// semantically invalid input beyond JSON type-checking (actionreg.Spec.Decode
// calls these before an Action is accepted).

func requireNonEmpty(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}

func (a *RunArgs) Validate() error {
	if err := requireNonEmpty("command", a.Command); err != nil {
		return err
	}
	if err := requireNonEmpty("computer_ip", a.ComputerIP); err != nil {
		return err
	}
	return requireNonEmpty("session_id", a.SessionID)
}

func (a *InputSessionArgs) Validate() error {
	if err := requireNonEmpty("computer_ip", a.ComputerIP); err != nil {
		return err
	}
	return requireNonEmpty("session_id", a.SessionID)
}

func (a *GetSessionOutputArgs) Validate() error {
	if err := requireNonEmpty("computer_ip", a.ComputerIP); err != nil {
		return err
	}
	return requireNonEmpty("session_id", a.SessionID)
}

func (a *GetSessionRecentOutputArgs) Validate() error {
	if err := requireNonEmpty("computer_ip", a.ComputerIP); err != nil {
		return err
	}
	if err := requireNonEmpty("session_id", a.SessionID); err != nil {
		return err
	}
	if a.Seconds <= 0 {
		return fmt.Errorf("seconds must be positive")
	}
	return nil
}

func (a *CreateSessionArgs) Validate() error {
	return requireNonEmpty("computer_ip", a.ComputerIP)
}

func (a *ListSessionsArgs) Validate() error { return nil }

func (a *CheckSessionStatusArgs) Validate() error {
	if err := requireNonEmpty("computer_ip", a.ComputerIP); err != nil {
		return err
	}
	return requireNonEmpty("session_id", a.SessionID)
}

func (a *CheckSessionIdleArgs) Validate() error {
	if err := requireNonEmpty("computer_ip", a.ComputerIP); err != nil {
		return err
	}
	return requireNonEmpty("session_id", a.SessionID)
}

func (a *ClearSessionBufferArgs) Validate() error {
	if err := requireNonEmpty("computer_ip", a.ComputerIP); err != nil {
		return err
	}
	return requireNonEmpty("session_id", a.SessionID)
}

func (a *CloseSessionArgs) Validate() error {
	if err := requireNonEmpty("computer_ip", a.ComputerIP); err != nil {
		return err
	}
	return requireNonEmpty("session_id", a.SessionID)
}

func (a *CloseAllSessionsArgs) Validate() error { return nil }

func (a *KillSessionProcessesArgs) Validate() error {
	if err := requireNonEmpty("computer_ip", a.ComputerIP); err != nil {
		return err
	}
	return requireNonEmpty("session_id", a.SessionID)
}

func (a *EditArgs) Validate() error {
	return requireNonEmpty("path", a.Path)
}

func (a *SearchDirArgs) Validate() error {
	if err := requireNonEmpty("directory", a.Directory); err != nil {
		return err
	}
	return requireNonEmpty("pattern", a.Pattern)
}

func (a *WebBrowseArgs) Validate() error {
	return requireNonEmpty("url", a.URL)
}

func (a *EvalArgs) Validate() error { return nil }

func (a *SleepArgs) Validate() error {
	if a.Seconds <= 0 {
		return fmt.Errorf("seconds must be positive")
	}
	return nil
}

func (a *FinishArgs) Validate() error { return nil }

func (a *ThinkArgs) Validate() error {
	return requireNonEmpty("thought", a.Thought)
}

func (a *SummarizeArgs) Validate() error {
	if a.StartSummaryDepth <= 0 {
		return fmt.Errorf("start_summary_depth must be positive")
	}
	if a.EndSummaryDepth <= a.StartSummaryDepth {
		return fmt.Errorf("end_summary_depth must be greater than start_summary_depth")
	}
	return nil
}
