package aws

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/maksha19/message-be-v2/engine"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

const ownerTagKey = "UserId"

// LaunchTemplate carries the fixed EC2 parameters for a bridge instance.
// Populated from the environment in cmd/api; no credentials live here.
type LaunchTemplate struct {
	ImageID            string
	InstanceType       string
	KeyName            string
	SecurityGroupIDs   []string
	SubnetID           string
	IamInstanceProfile string
	VolumeSizeGiB      int32
	BootCommand        string // docker run line baked into user data
}

// Options contains the configuration for the AWS provider
type Options struct {
	EC2      *ec2.Client
	SSM      *ssm.Client
	Template LaunchTemplate
	Logger   *zap.Logger
}

// Client implements engine.Provider on top of EC2 and SSM
type Client struct {
	Options
}

var _ engine.Provider = &Client{}

// NewClient will return a provider backed by EC2 for compute and SSM for
// remote command execution
func NewClient(option Options) (*Client, error) {
	if option.EC2 == nil {
		return nil, fmt.Errorf("nil EC2 client is invalid")
	}
	if option.SSM == nil {
		return nil, fmt.Errorf("nil SSM client is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if len(option.Template.ImageID) == 0 {
		return nil, fmt.Errorf("empty Template.ImageID is invalid")
	}
	return &Client{
		Options: option,
	}, nil
}

func (c *Client) Launch(ctx context.Context, spec engine.LaunchSpec) (string, error) {
	if len(spec.OwnerID) == 0 {
		return "", engine.NewError(engine.ErrKindTransient, "launch", fmt.Errorf("empty OwnerID is invalid"))
	}

	tmpl := c.Template
	userData := base64.StdEncoding.EncodeToString([]byte("#!/bin/bash\n" + tmpl.BootCommand))

	input := &ec2.RunInstancesInput{
		ImageId:                           aws.String(tmpl.ImageID),
		InstanceType:                      ec2types.InstanceType(tmpl.InstanceType),
		MinCount:                          aws.Int32(1),
		MaxCount:                          aws.Int32(1),
		KeyName:                           aws.String(tmpl.KeyName),
		SecurityGroupIds:                  tmpl.SecurityGroupIDs,
		SubnetId:                          aws.String(tmpl.SubnetID),
		InstanceInitiatedShutdownBehavior: ec2types.ShutdownBehaviorTerminate,
		IamInstanceProfile: &ec2types.IamInstanceProfileSpecification{
			Name: aws.String(tmpl.IamInstanceProfile),
		},
		BlockDeviceMappings: []ec2types.BlockDeviceMapping{
			{
				DeviceName: aws.String("/dev/xvda"),
				Ebs: &ec2types.EbsBlockDevice{
					VolumeSize:          aws.Int32(tmpl.VolumeSizeGiB),
					VolumeType:          ec2types.VolumeTypeGp3,
					DeleteOnTermination: aws.Bool(true),
				},
			},
		},
		UserData: aws.String(userData),
		TagSpecifications: []ec2types.TagSpecification{
			{
				ResourceType: ec2types.ResourceTypeInstance,
				Tags: []ec2types.Tag{
					{Key: aws.String(ownerTagKey), Value: aws.String(spec.OwnerID)},
				},
			},
		},
	}

	out, err := c.EC2.RunInstances(ctx, input)
	if err != nil {
		return "", mapError("launch", err)
	}
	if len(out.Instances) == 0 || out.Instances[0].InstanceId == nil {
		return "", engine.NewError(engine.ErrKindTransient, "launch", fmt.Errorf("provider returned no instance id"))
	}

	instanceID := *out.Instances[0].InstanceId
	c.Logger.Info("EC2 instance launched",
		zap.String("InstanceID", instanceID),
		zap.String("OwnerID", spec.OwnerID),
	)
	return instanceID, nil
}

func (c *Client) Describe(ctx context.Context, filter engine.DescribeFilter) ([]engine.Description, error) {
	input := &ec2.DescribeInstancesInput{}
	if len(filter.InstanceID) > 0 {
		input.InstanceIds = []string{filter.InstanceID}
	}
	filters := make([]ec2types.Filter, 0, 2)
	if filter.RunningOnly {
		filters = append(filters, ec2types.Filter{
			Name:   aws.String("instance-state-name"),
			Values: []string{"running"},
		})
	}
	if len(filter.OwnerID) > 0 {
		filters = append(filters, ec2types.Filter{
			Name:   aws.String("tag:" + ownerTagKey),
			Values: []string{filter.OwnerID},
		})
	}
	if len(filters) > 0 {
		input.Filters = filters
	}

	out, err := c.EC2.DescribeInstances(ctx, input)
	if err != nil {
		return nil, mapError("describe", err)
	}

	descriptions := make([]engine.Description, 0, 1)
	for _, reservation := range out.Reservations {
		for _, inst := range reservation.Instances {
			d := engine.Description{}
			if inst.InstanceId != nil {
				d.InstanceID = *inst.InstanceId
			}
			if inst.State != nil {
				d.State = string(inst.State.Name)
			}
			if inst.PublicIpAddress != nil {
				d.PublicEndpoint = *inst.PublicIpAddress
			}
			descriptions = append(descriptions, d)
		}
	}
	return descriptions, nil
}

func (c *Client) Terminate(ctx context.Context, instanceID string) error {
	if len(instanceID) == 0 {
		return engine.NewError(engine.ErrKindTransient, "terminate", fmt.Errorf("empty instanceID is invalid"))
	}
	out, err := c.EC2.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		return mapError("terminate", err)
	}
	if len(out.TerminatingInstances) == 0 {
		return engine.NewError(engine.ErrKindTransient, "terminate", fmt.Errorf("provider returned no termination state"))
	}
	c.Logger.Info("EC2 instance terminating",
		zap.String("InstanceID", instanceID),
	)
	return nil
}

func (c *Client) IsRegisteredForRemoteCommands(ctx context.Context, instanceID string) (bool, error) {
	out, err := c.SSM.DescribeInstanceInformation(ctx, &ssm.DescribeInstanceInformationInput{})
	if err != nil {
		return false, mapError("remote-command registration", err)
	}
	for _, info := range out.InstanceInformationList {
		if info.InstanceId != nil && *info.InstanceId == instanceID {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) RunCommand(ctx context.Context, instanceID string, commands []string) (string, error) {
	out, err := c.SSM.SendCommand(ctx, &ssm.SendCommandInput{
		DocumentName: aws.String("AWS-RunShellScript"),
		InstanceIds:  []string{instanceID},
		Parameters: map[string][]string{
			"commands": commands,
		},
	})
	if err != nil {
		return "", mapError("run command", err)
	}
	if out.Command == nil || out.Command.CommandId == nil {
		return "", engine.NewError(engine.ErrKindTransient, "run command", fmt.Errorf("provider returned no command id"))
	}
	return *out.Command.CommandId, nil
}

// mapError translates AWS failures into the closed provider taxonomy
func mapError(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch {
		case strings.Contains(code, "NotFound"):
			return engine.NewError(engine.ErrKindNotFound, op, err)
		case code == "UnauthorizedOperation" || code == "AuthFailure" || strings.Contains(code, "AccessDenied"):
			return engine.NewError(engine.ErrKindUnauthorized, op, err)
		}
	}
	return engine.NewError(engine.ErrKindTransient, op, err)
}
