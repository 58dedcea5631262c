package auth

import (
	"fmt"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// ParentIdentity is the signed-in parent taken from the API Gateway authorizer context
type ParentIdentity struct {
	CognitoID string `json:"sub"`
	Email     string `json:"email"`
}

// ExtractParentIdentity reads the Cognito sub and email from the authorizer claims.
// Enrollment routes may be called without an authorizer, in which case an error is returned
// and the caller falls back to a user pool lookup.
func ExtractParentIdentity(request events.APIGatewayProxyRequest) (*ParentIdentity, error) {
	var claimsMap map[string]interface{}
	var ok bool

	// Cognito user pool authorizers nest the token claims under "claims"
	if authClaims, exists := request.RequestContext.Authorizer["claims"]; exists {
		claimsMap, ok = authClaims.(map[string]interface{})
	}

	// Lambda authorizers put the context values directly on the authorizer map
	if !ok {
		claimsMap = request.RequestContext.Authorizer
		ok = (claimsMap != nil)
	}

	if !ok || len(claimsMap) == 0 {
		return nil, fmt.Errorf("claims not found in authorizer context")
	}

	cognitoID, ok := claimsMap["sub"].(string)
	if !ok || cognitoID == "" {
		return nil, fmt.Errorf("sub not found or invalid in claims")
	}

	email, _ := claimsMap["email"].(string)

	return &ParentIdentity{
		CognitoID: cognitoID,
		Email:     strings.TrimSpace(email),
	}, nil
}

// MatchesEmail reports whether the signed-in parent owns the given email
func (p *ParentIdentity) MatchesEmail(email string) bool {
	return p.Email != "" && strings.EqualFold(p.Email, strings.TrimSpace(email))
}
