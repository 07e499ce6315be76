package shared

import "fmt"

// FundLockKey builds redis keys for per-fund critical sections.
func FundLockKey(fundID int64) string {
	return fmt.Sprintf("ledger:fund:%d:lock", fundID)
}

// CustomerLockKey builds redis keys for customer balance rebuilds.
func CustomerLockKey(customerID int64) string {
	return fmt.Sprintf("ledger:customer:%d:lock", customerID)
}

// CustomerRebuildLockKey guards full customer balance rebuilds.
const CustomerRebuildLockKey = "ledger:customer:rebuild:lock"
