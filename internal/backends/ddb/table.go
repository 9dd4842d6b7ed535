package ddb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbTypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	log "github.com/sirupsen/logrus"
)

const (
	SApp       = "APP"
	SNamespace = "NS"
)

func pkApp(appID string) string       { return fmt.Sprintf("%s#%s", SApp, appID) }
func skNamespace(ns string) string    { return fmt.Sprintf("%s#%s", SNamespace, ns) }
func parseNamespace(sk string) string { return strings.TrimPrefix(sk, SNamespace+"#") }
func awsString(s string) *string      { return &s }
func awsBool(b bool) *bool            { return &b }

// createTableIfNotExists creates the cache table. An existing table is not an error.
func createTableIfNotExists(ctx context.Context, client *dynamodb.Client, table string) error {
	_, err := client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: &table,
		AttributeDefinitions: []ddbTypes.AttributeDefinition{
			{AttributeName: awsString("PK"), AttributeType: ddbTypes.ScalarAttributeTypeS},
			{AttributeName: awsString("SK"), AttributeType: ddbTypes.ScalarAttributeTypeS},
		},
		KeySchema: []ddbTypes.KeySchemaElement{
			{AttributeName: awsString("PK"), KeyType: ddbTypes.KeyTypeHash},
			{AttributeName: awsString("SK"), KeyType: ddbTypes.KeyTypeRange},
		},
		BillingMode: ddbTypes.BillingModePayPerRequest,
	})
	var re *ddbTypes.ResourceInUseException
	if err != nil && !errors.As(err, &re) {
		return err
	}
	if err == nil {
		log.WithField("table", table).Info("created cache table")
	}
	return nil
}
