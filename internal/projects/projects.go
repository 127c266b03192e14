// Package projects grants and revokes a user profile's access to the
// notebook service's project template portfolios. The account-level
// portfolio share must already be accepted; this package only manages the
// per-role principal associations.
package projects

import (
	"context"
	"fmt"

	"studioprov/internal/controlplane"
	"studioprov/pkg/logging"
)

const subsystem = "Projects"

// templateProviderName identifies the portfolios published by the notebook
// service among all accepted shares.
const templateProviderName = "Amazon SageMaker"

// Enabler manages portfolio access for user-profile execution roles.
type Enabler struct {
	client  controlplane.Client
	catalog controlplane.Catalog
}

// NewEnabler creates an Enabler over the given control plane APIs.
func NewEnabler(client controlplane.Client, catalog controlplane.Catalog) *Enabler {
	return &Enabler{client: client, catalog: catalog}
}

// EnableForUser associates the user profile's execution role with every
// accepted project template portfolio.
func (e *Enabler) EnableForUser(ctx context.Context, domainID, userProfileName string) error {
	roleARN, err := e.userRoleARN(ctx, domainID, userProfileName)
	if err != nil {
		return err
	}
	portfolioIDs, err := e.templatePortfolios(ctx)
	if err != nil {
		return err
	}
	logging.Info(subsystem, "Adding %d template portfolios to role %s", len(portfolioIDs), roleARN)
	for _, id := range portfolioIDs {
		if err := e.catalog.AssociatePrincipalWithPortfolio(ctx, id, roleARN); err != nil {
			return fmt.Errorf("associating role with portfolio %s: %w", id, err)
		}
	}
	return nil
}

// DisableForUser removes the user profile's execution role from every
// accepted project template portfolio.
func (e *Enabler) DisableForUser(ctx context.Context, domainID, userProfileName string) error {
	roleARN, err := e.userRoleARN(ctx, domainID, userProfileName)
	if err != nil {
		return err
	}
	portfolioIDs, err := e.templatePortfolios(ctx)
	if err != nil {
		return err
	}
	logging.Info(subsystem, "Removing %d template portfolios from role %s", len(portfolioIDs), roleARN)
	for _, id := range portfolioIDs {
		if err := e.catalog.DisassociatePrincipalFromPortfolio(ctx, id, roleARN); err != nil {
			return fmt.Errorf("disassociating role from portfolio %s: %w", id, err)
		}
	}
	return nil
}

func (e *Enabler) userRoleARN(ctx context.Context, domainID, userProfileName string) (string, error) {
	desc, err := e.client.DescribeUserProfile(ctx, domainID, userProfileName)
	if err != nil {
		return "", fmt.Errorf("describing user profile %s: %w", userProfileName, err)
	}
	if desc.UserSettings.ExecutionRole == "" {
		return "", fmt.Errorf("user profile %s has no execution role", userProfileName)
	}
	return desc.UserSettings.ExecutionRole, nil
}

func (e *Enabler) templatePortfolios(ctx context.Context) ([]string, error) {
	shares, err := e.catalog.ListAcceptedPortfolioShares(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing accepted portfolio shares: %w", err)
	}
	var ids []string
	for _, share := range shares {
		if share.ProviderName == templateProviderName {
			ids = append(ids, share.ID)
		}
	}
	return ids, nil
}
